// Package query turns untrusted paging and range input into the bounded
// skip/limit/filter/order shape the post repository executes.
package query

import (
	"time"

	"github.com/Luismorlan/beautyland/model"
)

// Order is a sort on one whitelisted column.
type Order struct {
	Column string
	Desc   bool
}

var (
	ByNewest     = Order{Column: model.ColumnCreatedAt, Desc: true}
	ByMostViewed = Order{Column: model.ColumnViewCount, Desc: true}
)

// IsValid reports whether the order column is one the repository may sort on.
func (o Order) IsValid() bool {
	return o.Column == model.ColumnCreatedAt || o.Column == model.ColumnViewCount
}

// Filter narrows a listing. The zero value matches every visible post.
type Filter struct {
	// CreatedSince keeps posts with created_at >= CreatedSince when non-zero.
	CreatedSince time.Time
}

// Listing is a fully normalized read request.
type Listing struct {
	Filter Filter
	Order  Order
	Skip   int
	Size   int
}

// Index builds the listing for an index page, newest first.
func Index(page int, pageSize int) Listing {
	skip, limit := Paginate(page, pageSize)
	return Listing{Order: ByNewest, Skip: skip, Size: limit}
}

// Trend builds the listing for a trend page: posts created within rangeDays
// of now, most viewed first. rangeDays is clamped to [0, MaxRange].
func Trend(now time.Time, rangeDays int, page int, pageSize int) Listing {
	skip, limit := Paginate(page, pageSize)
	return Listing{
		Filter: Filter{CreatedSince: now.AddDate(0, 0, -ClampRange(rangeDays))},
		Order:  ByMostViewed,
		Skip:   skip,
		Size:   limit,
	}
}
