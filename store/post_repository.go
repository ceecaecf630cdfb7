package store

import (
	"context"

	"github.com/Luismorlan/beautyland/model"
	"github.com/Luismorlan/beautyland/query"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultRandomSize = 20

// ReadOptions controls privileged reads.
type ReadOptions struct {
	// AsAdmin includes hidden posts and the visibility column.
	AsAdmin bool
}

// PostRepository executes every read and write on the post table through a
// shared Connection. Results that match nothing are reported as nil values
// or false, never as errors.
type PostRepository struct {
	conn *Connection
}

func NewPostRepository(conn *Connection) *PostRepository {
	return &PostRepository{conn: conn}
}

// Exists returns true iff a post with postId is stored, hidden or not.
func (r *PostRepository) Exists(ctx context.Context, postId string) (bool, error) {
	db, err := r.conn.posts(ctx)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.Where(model.ColumnPostId+" = ?", postId).Count(&count).Error; err != nil {
		return false, errors.Wrapf(err, "fail to check existence of post %s", postId)
	}
	return count > 0, nil
}

// Save inserts post and returns true, or returns false without writing when a
// post with the same PostId is already stored. The existence check only saves
// a round trip; concurrent saves of one PostId are settled by the unique index
// and the loser also gets false.
func (r *PostRepository) Save(ctx context.Context, post *model.Post) (bool, error) {
	if post == nil || post.PostId == "" {
		return false, ErrEmptyPostId
	}
	db, err := r.conn.posts(ctx)
	if err != nil {
		return false, err
	}

	exists, err := r.Exists(ctx, post.PostId)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if post.Id == "" {
		post.Id = uuid.New().String()
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: model.ColumnPostId}},
		DoNothing: true,
	}).Create(post)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "fail to insert post %s", post.PostId)
	}
	switch res.RowsAffected {
	case 1:
		log.Infof("post %s saved", post.PostId)
		return true, nil
	case 0:
		log.Warnf("post %s was inserted concurrently, dropped as duplicate", post.PostId)
		return false, nil
	default:
		return false, errors.Errorf("insert of post %s affected %d rows", post.PostId, res.RowsAffected)
	}
}

// ReadOne returns the post with postId, or nil if there is none. Hidden posts
// are only returned to admins.
func (r *PostRepository) ReadOne(ctx context.Context, postId string, opts ReadOptions) (*model.Post, error) {
	db, err := r.conn.posts(ctx)
	if err != nil {
		return nil, err
	}

	db = db.Where(model.ColumnPostId+" = ?", postId)
	if opts.AsAdmin {
		db = db.Select(model.AdminColumns())
	} else {
		db = db.Select(model.PublicColumns).Where(model.ColumnVisibility+" = ?", true)
	}

	var post model.Post
	if err := db.Take(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "fail to read post %s", postId)
	}
	return &post, nil
}

// ReadMany returns the visible posts selected by listing, or nil when nothing
// matches.
func (r *PostRepository) ReadMany(ctx context.Context, listing query.Listing) ([]*model.Post, error) {
	if !listing.Order.IsValid() {
		return nil, errors.Errorf("unsupported order column %q", listing.Order.Column)
	}
	if listing.Skip < 0 {
		return nil, errors.Errorf("negative skip %d", listing.Skip)
	}
	skip, size := listing.Skip, listing.Size
	if size <= 0 {
		size = query.DefaultListingLimit
	}

	db, err := r.conn.posts(ctx)
	if err != nil {
		return nil, err
	}

	db = db.Select(model.PublicColumns).Where(model.ColumnVisibility+" = ?", true)
	if !listing.Filter.CreatedSince.IsZero() {
		db = db.Where(model.ColumnCreatedAt+" >= ?", listing.Filter.CreatedSince)
	}

	var posts []*model.Post
	err = db.
		Order(clause.OrderByColumn{Column: clause.Column{Name: listing.Order.Column}, Desc: listing.Order.Desc}).
		// post_id breaks ties so that consecutive pages never overlap
		Order(clause.OrderByColumn{Column: clause.Column{Name: model.ColumnPostId}}).
		Offset(skip).
		Limit(size).
		Find(&posts).Error
	if err != nil {
		return nil, errors.Wrap(err, "fail to read posts")
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return posts, nil
}

// ReadRandom returns up to size distinct visible posts picked uniformly at
// random.
func (r *PostRepository) ReadRandom(ctx context.Context, size int) ([]*model.Post, error) {
	if size <= 0 {
		size = DefaultRandomSize
	}
	db, err := r.conn.posts(ctx)
	if err != nil {
		return nil, err
	}

	var posts []*model.Post
	err = db.Select(model.PublicColumns).
		Where(model.ColumnVisibility+" = ?", true).
		Order("random()").
		Limit(size).
		Find(&posts).Error
	if err != nil {
		return nil, errors.Wrap(err, "fail to sample posts")
	}
	return posts, nil
}

// Count returns the number of visible posts.
func (r *PostRepository) Count(ctx context.Context) (int64, error) {
	db, err := r.conn.posts(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Where(model.ColumnVisibility+" = ?", true).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "fail to count posts")
	}
	return count, nil
}

// Delete removes the post with postId, returns false if there was none.
func (r *PostRepository) Delete(ctx context.Context, postId string) (bool, error) {
	db, err := r.conn.posts(ctx)
	if err != nil {
		return false, err
	}
	res := db.Where(model.ColumnPostId+" = ?", postId).Delete(&model.Post{})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "fail to delete post %s", postId)
	}
	return res.RowsAffected == 1, nil
}

// SetVisibility sets the moderation flag in one UPDATE ... RETURNING and
// returns true iff the post exists.
func (r *PostRepository) SetVisibility(ctx context.Context, postId string, visibility bool) (bool, error) {
	updated, err := r.updateOne(ctx, postId, model.ColumnVisibility, visibility)
	if err != nil {
		return false, errors.Wrapf(err, "fail to set visibility of post %s", postId)
	}
	if updated != nil {
		log.Infof("post %s visibility set to %t", postId, visibility)
	}
	return updated != nil, nil
}

// IncrementViewCount adds exactly one to the view count in a single atomic
// UPDATE and returns true iff the post exists.
func (r *PostRepository) IncrementViewCount(ctx context.Context, postId string) (bool, error) {
	updated, err := r.updateOne(ctx, postId, model.ColumnViewCount, gorm.Expr(model.ColumnViewCount+" + ?", 1))
	if err != nil {
		return false, errors.Wrapf(err, "fail to increment view count of post %s", postId)
	}
	return updated != nil, nil
}

// updateOne is a find-and-modify: it updates column on the post with postId
// and returns the post as it is after the update, or nil if none matched.
func (r *PostRepository) updateOne(ctx context.Context, postId string, column string, value interface{}) (*model.Post, error) {
	db, err := r.conn.posts(ctx)
	if err != nil {
		return nil, err
	}
	var updated model.Post
	res := db.Model(&updated).
		Clauses(clause.Returning{}).
		Where(model.ColumnPostId+" = ?", postId).
		Update(column, value)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &updated, nil
}
