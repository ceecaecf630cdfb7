// Package service is the surface the outer layer (http handlers, cli) calls.
// Inputs arrive as untrusted strings and are normalized here; an empty result
// is always (nil, nil) and every failure matches ErrUnavailable.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/Luismorlan/beautyland/daemon"
	"github.com/Luismorlan/beautyland/model"
	"github.com/Luismorlan/beautyland/query"
	"github.com/Luismorlan/beautyland/store"
	Logger "github.com/Luismorlan/beautyland/utils/log"
	"github.com/sirupsen/logrus"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const metricPrefix = "beautyland.main_service."

// PostStore is the part of the post repository the service reads and
// mutates through.
type PostStore interface {
	ReadOne(ctx context.Context, postId string, opts store.ReadOptions) (*model.Post, error)
	ReadMany(ctx context.Context, listing query.Listing) ([]*model.Post, error)
	ReadRandom(ctx context.Context, size int) ([]*model.Post, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, postId string) (bool, error)
	SetVisibility(ctx context.Context, postId string, visibility bool) (bool, error)
	IncrementViewCount(ctx context.Context, postId string) (bool, error)
}

// Preloader serves the first index pages from a snapshot.
type Preloader interface {
	Page(ctx context.Context, skip int, size int) ([]*model.Post, bool, error)
	Invalidate(ctx context.Context) error
}

type StatusReporter interface {
	Status() store.Status
}

type Dependencies struct {
	Store      PostStore
	Connection StatusReporter
	Commander  daemon.Commander
	// Preload is optional, every page is read from Store without it.
	Preload Preloader
	// Statsd is optional.
	Statsd statsd.ClientInterface
}

type MainServiceConfig struct {
	PageSize      int
	RandomSize    int
	SourceBaseURL string
}

type MainService struct {
	store     PostStore
	conn      StatusReporter
	commander daemon.Commander
	preload   Preloader
	statsd    statsd.ClientInterface
	config    MainServiceConfig
	now       func() time.Time
	log       *logrus.Entry
}

func NewMainService(deps Dependencies, config MainServiceConfig) *MainService {
	if config.PageSize <= 0 {
		config.PageSize = query.DefaultListingLimit
	}
	if config.RandomSize <= 0 {
		config.RandomSize = store.DefaultRandomSize
	}
	s := &MainService{
		store:     deps.Store,
		conn:      deps.Connection,
		commander: deps.Commander,
		preload:   deps.Preload,
		statsd:    deps.Statsd,
		config:    config,
		now:       time.Now,
		log:       Logger.Named("main-service"),
	}
	if s.statsd == nil {
		s.statsd = &statsd.NoOpClient{}
	}
	return s
}

// ServiceStatus is what the admin status page shows.
type ServiceStatus struct {
	Connection   store.Status
	VisiblePosts int64
}

// ListIndex returns an index page, newest first. Invalid pages are served
// as page 1.
func (s *MainService) ListIndex(ctx context.Context, page string) (posts []*model.Post, err error) {
	span, ctx := tracer.StartSpanFromContext(ctx, "main_service.list_index")
	defer func() { span.Finish(tracer.WithError(err)) }()

	listing := query.Index(query.ParsePage(page), s.config.PageSize)
	s.log.Infof("ListIndex() started. page=%s", page)

	if s.preload != nil {
		cached, ok, err := s.preload.Page(ctx, listing.Skip, listing.Size)
		if err != nil {
			s.log.WithError(err).Warn("preload list unavailable, reading database")
		} else if ok {
			s.count("preload.hit")
			return cached, nil
		}
	}

	posts, err = s.store.ReadMany(ctx, listing)
	if err != nil {
		return nil, s.fault("ListIndex", err, logrus.Fields{"page": page})
	}
	return posts, nil
}

// GetPost returns a visible post, or nil.
func (s *MainService) GetPost(ctx context.Context, postId string) (post *model.Post, err error) {
	span, ctx := tracer.StartSpanFromContext(ctx, "main_service.get_post")
	defer func() { span.Finish(tracer.WithError(err)) }()

	post, err = s.store.ReadOne(ctx, postId, store.ReadOptions{})
	if err != nil {
		return nil, s.fault("GetPost", err, logrus.Fields{"postId": postId})
	}
	return post, nil
}

// GetPostAsAdmin returns a post whatever its visibility, or nil.
func (s *MainService) GetPostAsAdmin(ctx context.Context, postId string) (*model.Post, error) {
	post, err := s.store.ReadOne(ctx, postId, store.ReadOptions{AsAdmin: true})
	if err != nil {
		return nil, s.fault("GetPostAsAdmin", err, logrus.Fields{"postId": postId})
	}
	return post, nil
}

// ListTrends returns the most viewed posts created within rangeDays. An
// invalid range is served as a week.
func (s *MainService) ListTrends(ctx context.Context, rangeDays string, page string) ([]*model.Post, error) {
	return s.listTrends(ctx, query.ParseRange(rangeDays, query.DefaultRange), query.ParsePage(page))
}

func (s *MainService) ListWeeklyTrends(ctx context.Context, page string) ([]*model.Post, error) {
	return s.listTrends(ctx, query.WeeklyRange, query.ParsePage(page))
}

func (s *MainService) ListMonthlyTrends(ctx context.Context, page string) ([]*model.Post, error) {
	return s.listTrends(ctx, query.MonthlyRange, query.ParsePage(page))
}

func (s *MainService) listTrends(ctx context.Context, rangeDays int, page int) (posts []*model.Post, err error) {
	span, ctx := tracer.StartSpanFromContext(ctx, "main_service.list_trends")
	defer func() { span.Finish(tracer.WithError(err)) }()

	posts, err = s.store.ReadMany(ctx, query.Trend(s.now(), rangeDays, page, s.config.PageSize))
	if err != nil {
		return nil, s.fault("ListTrends", err, logrus.Fields{"range": rangeDays, "page": page})
	}
	return posts, nil
}

// ListRandom samples size visible posts, the configured size when size <= 0.
func (s *MainService) ListRandom(ctx context.Context, size int) (posts []*model.Post, err error) {
	span, ctx := tracer.StartSpanFromContext(ctx, "main_service.list_random")
	defer func() { span.Finish(tracer.WithError(err)) }()

	if size <= 0 {
		size = s.config.RandomSize
	}
	posts, err = s.store.ReadRandom(ctx, size)
	if err != nil {
		return nil, s.fault("ListRandom", err, logrus.Fields{"size": size})
	}
	return posts, nil
}

// BumpViewCount adds one view to the post, false if there is no such post.
func (s *MainService) BumpViewCount(ctx context.Context, postId string) (ok bool, err error) {
	span, ctx := tracer.StartSpanFromContext(ctx, "main_service.bump_view_count")
	defer func() { span.Finish(tracer.WithError(err)) }()

	ok, err = s.store.IncrementViewCount(ctx, postId)
	if err != nil {
		return false, s.fault("BumpViewCount", err, logrus.Fields{"postId": postId})
	}
	if ok {
		s.count("view_count.bump")
	}
	return ok, nil
}

// RequestBuild asks the daemon to build posts from the board index page
// pageIndex. It returns false without error when pageIndex is not a
// non-negative integer, and true once the command is handed off.
func (s *MainService) RequestBuild(ctx context.Context, pageIndex string) (bool, error) {
	index, err := strconv.Atoi(strings.TrimSpace(pageIndex))
	if err != nil || index < 0 {
		s.log.Warnf("RequestBuild() rejected page index %q", pageIndex)
		return false, nil
	}
	url := s.BuildURL(index)
	if err := s.commander.Send(ctx, daemon.BuildPostsCommand(url)); err != nil {
		return false, s.fault("RequestBuild", err, logrus.Fields{"url": url})
	}
	s.count("build.requested")
	return true, nil
}

// BuildURL returns the board index page url for index.
func (s *MainService) BuildURL(index int) string {
	return fmt.Sprintf("%s/index%d.html", strings.TrimRight(s.config.SourceBaseURL, "/"), index)
}

func (s *MainService) HidePost(ctx context.Context, postId string) (bool, error) {
	return s.setVisibility(ctx, postId, false)
}

func (s *MainService) ShowPost(ctx context.Context, postId string) (bool, error) {
	return s.setVisibility(ctx, postId, true)
}

func (s *MainService) setVisibility(ctx context.Context, postId string, visibility bool) (bool, error) {
	ok, err := s.store.SetVisibility(ctx, postId, visibility)
	if err != nil {
		return false, s.fault("SetVisibility", err, logrus.Fields{"postId": postId, "visibility": visibility})
	}
	if ok {
		s.invalidatePreload(ctx)
	}
	return ok, nil
}

func (s *MainService) DeletePost(ctx context.Context, postId string) (bool, error) {
	ok, err := s.store.Delete(ctx, postId)
	if err != nil {
		return false, s.fault("DeletePost", err, logrus.Fields{"postId": postId})
	}
	if ok {
		s.invalidatePreload(ctx)
	}
	return ok, nil
}

func (s *MainService) Status(ctx context.Context) (ServiceStatus, error) {
	status := ServiceStatus{Connection: s.conn.Status()}
	if !status.Connection.IsConnected {
		return status, nil
	}
	count, err := s.store.Count(ctx)
	if err != nil {
		return status, s.fault("Status", err, nil)
	}
	status.VisiblePosts = count
	return status, nil
}

// invalidatePreload drops the snapshot so a hidden or deleted post stops
// showing on the first pages before the next refresh.
func (s *MainService) invalidatePreload(ctx context.Context) {
	if s.preload == nil {
		return
	}
	if err := s.preload.Invalidate(ctx); err != nil {
		s.log.WithError(err).Warn("fail to invalidate preload list")
	}
}

// fault logs and counts a failure and wraps it as an UnavailableError.
func (s *MainService) fault(op string, err error, fields logrus.Fields) error {
	s.log.WithFields(fields).WithError(err).Errorf("Error in main-service.%s()", op)
	s.count("error")
	return &UnavailableError{Op: op, Cause: err}
}

func (s *MainService) count(name string) {
	s.statsd.Incr(metricPrefix+name, nil, 1)
}
