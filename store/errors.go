package store

import "github.com/pkg/errors"

var (
	// ErrNotConnected is returned by every repository operation invoked before
	// a successful Connect. It is never confused with "no results", which is
	// reported as a nil value with a nil error.
	ErrNotConnected = errors.New("database connection does not exist")

	ErrEmptyPostId = errors.New("post id is required")
)
