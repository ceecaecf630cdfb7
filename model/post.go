package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

Post is a piece of content harvested from the forum board by the daemon

Id: storage-internal primary key, never exposed to readers
PostId: business key assigned by the source board, unique across the table
CreatedAt: time when the post is ingested, default sort key and trend window boundary
ViewCount: number of times the post was viewed, only ever incremented by 1

Visibility:
		true if the post is publicly readable, false if it is hidden by moderation.
		Non-admin reads never select this column, so it is left nil on the
		returned value and omitted from json.

Title: post's title in plain text
Author: post's author id on the source board
Href: link to the original post on the source board
Attributes: open bag of any other payload (images, thumbnails, dimensions...)
*/

type Post struct {
	Id         string            `json:"-" gorm:"primaryKey"`
	PostId     string            `json:"postId" gorm:"not null"`
	CreatedAt  time.Time         `json:"createdAt"`
	ViewCount  int64             `json:"viewCount" gorm:"not null;default:0"`
	Visibility *bool             `json:"visibility,omitempty" gorm:"not null;default:true"`
	Title      string            `json:"title"`
	Author     string            `json:"author"`
	Href       string            `json:"href"`
	Attributes datatypes.JSONMap `json:"attributes,omitempty"`
}

const (
	ColumnPostId     = "post_id"
	ColumnCreatedAt  = "created_at"
	ColumnViewCount  = "view_count"
	ColumnVisibility = "visibility"
)

// PublicColumns are the columns every read projects. The internal id is never
// part of a projection.
var PublicColumns = []string{
	ColumnPostId,
	ColumnCreatedAt,
	ColumnViewCount,
	"title",
	"author",
	"href",
	"attributes",
}

// AdminColumns extends PublicColumns with the moderation flag.
func AdminColumns() []string {
	return append(append([]string{}, PublicColumns...), ColumnVisibility)
}

// IsVisible reports the stored flag, treating an unset flag as visible since
// the column defaults to true on insert.
func (p *Post) IsVisible() bool {
	return p.Visibility == nil || *p.Visibility
}

// Bool returns a pointer to b, used to fill Visibility.
func Bool(b bool) *bool {
	return &b
}
