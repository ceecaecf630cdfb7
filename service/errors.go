package service

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnavailable is matched (errors.Is) by every failure caused by storage or
// daemon dispatch, as opposed to an empty result. It is worth a retry.
var ErrUnavailable = errors.New("post service unavailable")

// UnavailableError carries the failed operation and its cause. The cause
// chain stays inspectable, e.g. errors.Is(err, store.ErrNotConnected).
type UnavailableError struct {
	Op    string
	Cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrUnavailable, e.Cause)
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}
