package query

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultPage         = 1
	DefaultRange        = 7
	WeeklyRange         = 7
	MonthlyRange        = 30
	DefaultListingLimit = 20

	// MaxPage keeps page arithmetic within int32 on every platform.
	MaxPage = math.MaxInt32
	// MaxRange is a century of days. Wider ranges select the same posts and
	// would push the boundary out of the timestamp range of the store.
	MaxRange = 36500
)

// ParsePage parses an untrusted page number. Missing, non-numeric and negative
// values become DefaultPage, values above MaxPage become MaxPage.
func ParsePage(raw string) int {
	return parseBounded(raw, DefaultPage, MaxPage)
}

// ParseRange parses an untrusted day range. Missing, non-numeric and negative
// values become def, values above MaxRange become MaxRange.
func ParseRange(raw string, def int) int {
	return parseBounded(raw, def, MaxRange)
}

func parseBounded(raw string, def int, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if errors.Is(err, strconv.ErrRange) && n > 0 {
		return max
	}
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// ClampRange bounds a day range to [0, MaxRange].
func ClampRange(rangeDays int) int {
	if rangeDays < 0 {
		return 0
	}
	if rangeDays > MaxRange {
		return MaxRange
	}
	return rangeDays
}

// Paginate returns skip and limit for a 1-based page. Page 0 is served as
// page 1, a non-positive pageSize falls back to DefaultListingLimit. skip is
// never negative and never above math.MaxInt32: pages past that point are
// served as the last reachable page, which is empty for any real table.
func Paginate(page int, pageSize int) (skip int, limit int) {
	if pageSize <= 0 {
		pageSize = DefaultListingLimit
	}
	if pageSize > MaxPage {
		pageSize = MaxPage
	}
	if page < 1 {
		page = DefaultPage
	}
	if last := MaxPage/pageSize + 1; page > last {
		page = last
	}
	return (page - 1) * pageSize, pageSize
}
