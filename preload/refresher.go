package preload

import (
	"context"
	"time"

	"github.com/Luismorlan/beautyland/model"
	"github.com/Luismorlan/beautyland/query"
	Logger "github.com/Luismorlan/beautyland/utils/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PostLister reads a listing of visible posts.
type PostLister interface {
	ReadMany(ctx context.Context, listing query.Listing) ([]*model.Post, error)
}

const (
	DefaultRefreshInterval = time.Minute

	refreshAttempts = 3
)

type RefresherConfig struct {
	Name string
	// Interval defaults to DefaultRefreshInterval when not positive.
	Interval time.Duration
}

// Refresher is an engine module rebuilding the preload list every Interval.
type Refresher struct {
	config RefresherConfig
	list   *List
	source PostLister
	log    *logrus.Entry
}

func NewRefresher(config RefresherConfig, list *List, source PostLister) *Refresher {
	if config.Interval <= 0 {
		config.Interval = DefaultRefreshInterval
	}
	return &Refresher{
		config: config,
		list:   list,
		source: source,
		log:    Logger.Named(config.Name),
	}
}

func (r *Refresher) Name() string {
	return r.config.Name
}

func (r *Refresher) RunModule(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if err := r.Refresh(ctx); err != nil {
			r.log.WithError(err).Error("fail to refresh preload list")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Refresher) Shutdown() {}

// Refresh rebuilds the list from the newest visible posts. A rebuild that
// overlaps an invalidation is dropped and tried again, up to refreshAttempts
// times.
func (r *Refresher) Refresh(ctx context.Context) error {
	for attempt := 1; attempt <= refreshAttempts; attempt++ {
		gen, err := r.list.Generation(ctx)
		if err != nil {
			return err
		}
		posts, err := r.source.ReadMany(ctx, query.Index(1, r.list.Capacity()))
		if err != nil {
			return err
		}
		updated, err := r.list.UpdateAt(ctx, gen, posts)
		if err != nil {
			return err
		}
		if updated {
			r.log.Debugf("preload list refreshed with %d posts", len(posts))
			return nil
		}
		r.log.Infof("preload list invalidated during refresh, attempt %d", attempt)
	}
	return errors.Errorf("preload list kept changing over %d refresh attempts", refreshAttempts)
}
