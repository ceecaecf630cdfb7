// Package preload keeps the newest posts in redis so that the first index
// pages, which take most of the traffic, are served without a database read.
package preload

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Luismorlan/beautyland/model"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const keyPrefix = "beautyland:preload:"

// List is a snapshot of the newest Capacity visible posts, newest first.
type List struct {
	client   *redis.Client
	key      string
	capacity int
	ttl      time.Duration
}

// NewList creates a preload list for the given post table. The snapshot
// expires after ttl so a stopped refresher can't serve stale pages forever.
func NewList(client *redis.Client, table string, capacity int, ttl time.Duration) *List {
	return &List{
		client:   client,
		key:      keyPrefix + table,
		capacity: capacity,
		ttl:      ttl,
	}
}

func (l *List) Capacity() int {
	return l.capacity
}

// Covers reports whether the page lies entirely within the snapshot.
func (l *List) Covers(skip int, size int) bool {
	return skip >= 0 && size > 0 && skip+size <= l.capacity
}

// Page returns the posts at [skip, skip+size) of the snapshot. ok is false
// when the page isn't covered, the snapshot is missing or redis failed; the
// caller should then read the database. A covered page past the end of the
// snapshot is an empty result with ok true.
func (l *List) Page(ctx context.Context, skip int, size int) ([]*model.Post, bool, error) {
	if !l.Covers(skip, size) {
		return nil, false, nil
	}
	posts, err := l.load(ctx)
	if err != nil {
		return nil, false, err
	}
	if posts == nil {
		return nil, false, nil
	}
	if skip >= len(posts) {
		return nil, true, nil
	}
	end := skip + size
	if end > len(posts) {
		end = len(posts)
	}
	return posts[skip:end], true, nil
}

// Update replaces the snapshot, keeping at most Capacity posts.
func (l *List) Update(ctx context.Context, posts []*model.Post) error {
	data, err := l.encode(posts)
	if err != nil {
		return err
	}
	return errors.Wrap(l.client.Set(ctx, l.key, data, l.ttl).Err(), "fail to store preload list")
}

// Generation counts the invalidations of the list. Read it before building a
// snapshot and pass it to UpdateAt.
func (l *List) Generation(ctx context.Context) (int64, error) {
	gen, err := l.client.Get(ctx, l.genKey()).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "fail to read preload generation")
	}
	return gen, nil
}

// UpdateAt replaces the snapshot like Update, but only if the list was not
// invalidated since gen was read. It returns false when the snapshot was
// dropped as stale: its posts may have been read before a moderation.
func (l *List) UpdateAt(ctx context.Context, gen int64, posts []*model.Post) (bool, error) {
	data, err := l.encode(posts)
	if err != nil {
		return false, err
	}

	updated := false
	err = l.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, l.genKey()).Int64()
		if err == redis.Nil {
			current = 0
		} else if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, l.key, data, l.ttl)
			return nil
		})
		if err == nil {
			updated = true
		}
		return err
	}, l.genKey())
	if err == redis.TxFailedErr {
		// an Invalidate landed between the check and the write
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "fail to store preload list")
	}
	return updated, nil
}

// Invalidate drops the snapshot, e.g. after a post was hidden or deleted, and
// bumps the generation so that a refresh in flight can't store posts it read
// before the change.
func (l *List) Invalidate(ctx context.Context) error {
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, l.genKey())
		pipe.Del(ctx, l.key)
		return nil
	})
	return errors.Wrap(err, "fail to invalidate preload list")
}

func (l *List) genKey() string {
	return l.key + ":gen"
}

func (l *List) encode(posts []*model.Post) ([]byte, error) {
	if len(posts) > l.capacity {
		posts = posts[:l.capacity]
	}
	if posts == nil {
		posts = []*model.Post{}
	}
	data, err := json.Marshal(posts)
	return data, errors.Wrap(err, "fail to encode preload list")
}

// load returns nil, nil when there is no snapshot.
func (l *List) load(ctx context.Context) ([]*model.Post, error) {
	data, err := l.client.Get(ctx, l.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "fail to load preload list")
	}
	posts := []*model.Post{}
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, errors.Wrap(err, "fail to decode preload list")
	}
	return posts, nil
}
