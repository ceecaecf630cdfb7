package preload

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Luismorlan/beautyland/model"
	"github.com/Luismorlan/beautyland/query"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestList(t *testing.T, capacity int) (*List, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewList(client, "posts_test", capacity, time.Hour), s
}

func makePosts(n int) []*model.Post {
	posts := []*model.Post{}
	now := time.Now().Truncate(time.Second)
	for i := 0; i < n; i++ {
		posts = append(posts, &model.Post{
			PostId:    fmt.Sprintf("p%d", i),
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
			ViewCount: int64(i),
		})
	}
	return posts
}

func ids(posts []*model.Post) []string {
	res := []string{}
	for _, p := range posts {
		res = append(res, p.PostId)
	}
	return res
}

func TestPageMissWithoutSnapshot(t *testing.T) {
	list, _ := newTestList(t, 4)
	posts, ok, err := list.Page(context.Background(), 0, 2)
	assert.Nil(t, err)
	assert.False(t, ok)
	assert.Nil(t, posts)
}

func TestPage(t *testing.T) {
	list, _ := newTestList(t, 4)
	ctx := context.Background()
	require.Nil(t, list.Update(ctx, makePosts(6)))

	first, ok, err := list.Page(ctx, 0, 2)
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"p0", "p1"}, ids(first))

	second, ok, err := list.Page(ctx, 2, 2)
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"p2", "p3"}, ids(second))

	// beyond capacity goes to the database
	_, ok, err = list.Page(ctx, 4, 2)
	require.Nil(t, err)
	assert.False(t, ok)
}

func TestPageOfShortSnapshot(t *testing.T) {
	list, _ := newTestList(t, 10)
	ctx := context.Background()
	require.Nil(t, list.Update(ctx, makePosts(3)))

	page, ok, err := list.Page(ctx, 0, 5)
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"p0", "p1", "p2"}, ids(page))

	page, ok, err = list.Page(ctx, 5, 5)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Nil(t, page)

	// an empty table is cached as an empty snapshot, not as a miss
	require.Nil(t, list.Update(ctx, nil))
	page, ok, err = list.Page(ctx, 0, 5)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Nil(t, page)
}

func TestInvalidateAndExpire(t *testing.T) {
	list, s := newTestList(t, 4)
	ctx := context.Background()

	require.Nil(t, list.Update(ctx, makePosts(4)))
	require.Nil(t, list.Invalidate(ctx))
	_, ok, err := list.Page(ctx, 0, 2)
	require.Nil(t, err)
	assert.False(t, ok)

	require.Nil(t, list.Update(ctx, makePosts(4)))
	s.FastForward(2 * time.Hour)
	_, ok, err = list.Page(ctx, 0, 2)
	require.Nil(t, err)
	assert.False(t, ok)
}

func TestPageRedisDown(t *testing.T) {
	list, s := newTestList(t, 4)
	s.Close()
	_, ok, err := list.Page(context.Background(), 0, 2)
	assert.NotNil(t, err)
	assert.False(t, ok)
}

type fakeLister struct {
	posts    []*model.Post
	err      error
	listings []query.Listing
	// onRead runs inside ReadMany, before the result is returned.
	onRead func(call int) []*model.Post
}

func (f *fakeLister) ReadMany(ctx context.Context, listing query.Listing) ([]*model.Post, error) {
	f.listings = append(f.listings, listing)
	if f.onRead != nil {
		return f.onRead(len(f.listings)), f.err
	}
	return f.posts, f.err
}

func TestRefresh(t *testing.T) {
	list, _ := newTestList(t, 4)
	ctx := context.Background()
	source := &fakeLister{posts: makePosts(4)}
	r := NewRefresher(RefresherConfig{Name: "refresher", Interval: time.Minute}, list, source)

	require.Nil(t, r.Refresh(ctx))
	require.Equal(t, 1, len(source.listings))
	assert.Equal(t, query.Index(1, 4), source.listings[0])

	page, ok, err := list.Page(ctx, 0, 4)
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"p0", "p1", "p2", "p3"}, ids(page))

	source.err = errors.New("db down")
	assert.NotNil(t, r.Refresh(ctx))
}

func TestRefresherRunsUntilCancelled(t *testing.T) {
	list, _ := newTestList(t, 4)
	source := &fakeLister{posts: makePosts(2)}
	r := NewRefresher(RefresherConfig{Name: "refresher", Interval: 10 * time.Millisecond}, list, source)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.RunModule(ctx) }()

	require.Eventually(t, func() bool {
		_, ok, _ := list.Page(context.Background(), 0, 2)
		return ok
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.Nil(t, <-done)
}

func TestUpdateAtDropsStaleSnapshot(t *testing.T) {
	list, _ := newTestList(t, 4)
	ctx := context.Background()

	gen, err := list.Generation(ctx)
	require.Nil(t, err)
	assert.Equal(t, int64(0), gen)

	require.Nil(t, list.Invalidate(ctx))
	updated, err := list.UpdateAt(ctx, gen, makePosts(4))
	require.Nil(t, err)
	assert.False(t, updated)
	_, ok, err := list.Page(ctx, 0, 2)
	require.Nil(t, err)
	assert.False(t, ok)

	gen, err = list.Generation(ctx)
	require.Nil(t, err)
	assert.Equal(t, int64(1), gen)
	updated, err = list.UpdateAt(ctx, gen, makePosts(4))
	require.Nil(t, err)
	assert.True(t, updated)
	_, ok, err = list.Page(ctx, 0, 2)
	require.Nil(t, err)
	assert.True(t, ok)
}

func TestRefreshDoesNotRestoreModeratedPost(t *testing.T) {
	list, _ := newTestList(t, 4)
	ctx := context.Background()
	posts := makePosts(4)

	// the first read still sees p0, which gets hidden while the read is in
	// flight; the second read no longer sees it
	source := &fakeLister{onRead: func(call int) []*model.Post {
		if call == 1 {
			require.Nil(t, list.Invalidate(ctx))
			return posts
		}
		return posts[1:]
	}}
	r := NewRefresher(RefresherConfig{Name: "refresher", Interval: time.Minute}, list, source)

	require.Nil(t, r.Refresh(ctx))
	assert.Equal(t, 2, len(source.listings))
	page, ok, err := list.Page(ctx, 0, 4)
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids(page))
}

func TestRefreshGivesUpWhenAlwaysInvalidated(t *testing.T) {
	list, _ := newTestList(t, 4)
	ctx := context.Background()
	source := &fakeLister{onRead: func(int) []*model.Post {
		require.Nil(t, list.Invalidate(ctx))
		return makePosts(4)
	}}
	r := NewRefresher(RefresherConfig{Name: "refresher", Interval: time.Minute}, list, source)

	assert.NotNil(t, r.Refresh(ctx))
	assert.Equal(t, refreshAttempts, len(source.listings))
	_, ok, err := list.Page(ctx, 0, 2)
	require.Nil(t, err)
	assert.False(t, ok)
}

func TestRefresherWithoutIntervalUsesDefault(t *testing.T) {
	list, _ := newTestList(t, 4)
	source := &fakeLister{posts: makePosts(2)}
	r := NewRefresher(RefresherConfig{Name: "refresher"}, list, source)
	assert.Equal(t, DefaultRefreshInterval, r.config.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.RunModule(ctx) }()

	require.Eventually(t, func() bool {
		_, ok, _ := list.Page(context.Background(), 0, 2)
		return ok
	}, time.Second, 10*time.Millisecond)
	cancel()
	assert.Nil(t, <-done)
}
