package daemon

import (
	"context"
	"time"

	"github.com/Luismorlan/beautyland/model"
	Logger "github.com/Luismorlan/beautyland/utils/log"
	"github.com/araddon/dateparse"
	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
)

// CrawledPost is a post as the harvester extracted it from a board page.
type CrawledPost struct {
	PostId string
	Title  string
	Author string
	Href   string
	// PublishedAt is the date text shown on the board, in whatever layout the
	// board uses.
	PublishedAt string
	Images      []string
	Extra       map[string]interface{}
}

// Harvester fetches and parses the board page at url. Scraping lives outside
// this repository; implementations are injected.
type Harvester interface {
	Harvest(ctx context.Context, url string) ([]CrawledPost, error)
}

// LogHarvester only logs the request, used when no real harvester is wired.
type LogHarvester struct{}

func (LogHarvester) Harvest(ctx context.Context, url string) ([]CrawledPost, error) {
	Logger.Log.Infof("=== mock harvest of %s ===", url)
	return nil, nil
}

// ToPost converts a crawled post into a post ingested at now. The source date
// is normalized to RFC3339 when it can be parsed and dropped otherwise.
func ToPost(crawled CrawledPost, now time.Time) (*model.Post, error) {
	post := &model.Post{}
	if err := copier.Copy(post, &crawled); err != nil {
		return nil, errors.Wrap(err, "fail to convert crawled post")
	}
	post.CreatedAt = now
	post.Visibility = model.Bool(true)

	attributes := datatypes.JSONMap{}
	for k, v := range crawled.Extra {
		attributes[k] = v
	}
	if len(crawled.Images) > 0 {
		images := make([]interface{}, 0, len(crawled.Images))
		for _, img := range crawled.Images {
			images = append(images, img)
		}
		attributes["images"] = images
	}
	if crawled.PublishedAt != "" {
		if t, err := dateparse.ParseAny(crawled.PublishedAt); err == nil {
			attributes["publishedAt"] = t.Format(time.RFC3339)
		}
	}
	if len(attributes) > 0 {
		post.Attributes = attributes
	}
	return post, nil
}
