// Package crawl implements the bounded breadth-first site crawler used for
// carriers whose route pages must be discovered through unknown link
// topology.
package crawl

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/nearest-stops/stopsync/internal/config"
	"github.com/nearest-stops/stopsync/internal/model"
	"github.com/nearest-stops/stopsync/internal/osm"
	"github.com/nearest-stops/stopsync/internal/page"
)

// Fetcher fetches one page body. Pacing between fetches is the fetcher's
// responsibility.
type Fetcher interface {
	FetchString(ctx context.Context, url string) (string, error)
}

// Crawler walks a site breadth-first within depth and page-count caps,
// keeping pages that carry the map marker.
type Crawler struct {
	fetch    Fetcher
	maxPages int
	maxDepth int
	exclude  *SegmentMatcher
}

// New creates a Crawler from config.
func New(fetch Fetcher, cfg config.CrawlConfig) *Crawler {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 300
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 2
	}
	return &Crawler{
		fetch:    fetch,
		maxPages: maxPages,
		maxDepth: maxDepth,
		exclude:  NewSegmentMatcher(cfg.ExcludeSegments),
	}
}

type frontierItem struct {
	url   string
	depth int
}

// Collect crawls from the seed URLs and returns the pages containing the map
// marker, deduplicated by URL. A fetch failure skips the page, never aborts
// the crawl. Context cancellation stops the crawl with whatever was kept.
func (c *Crawler) Collect(ctx context.Context, seeds []string) []model.Link {
	if len(seeds) == 0 {
		return nil
	}
	host := hostOf(seeds[0])

	queue := make([]frontierItem, 0, len(seeds))
	for _, s := range seeds {
		queue = append(queue, frontierItem{url: s, depth: 0})
	}

	seen := make(map[string]bool)
	var kept []model.Link

	for len(queue) > 0 && len(seen) < c.maxPages {
		if ctx.Err() != nil {
			break
		}

		item := queue[0]
		queue = queue[1:]

		u := strings.TrimRight(item.url, "/")
		if seen[u] {
			continue
		}
		seen[u] = true

		body, err := c.fetch.FetchString(ctx, u)
		if err != nil {
			zap.L().Warn("crawl: fetch failed",
				zap.String("url", u),
				zap.Error(err),
			)
			continue
		}

		if osm.HasMarker(body) {
			kept = append(kept, model.Link{URL: u})
		}

		if item.depth < c.maxDepth {
			for _, link := range page.CollectLinks(body, u, host, false) {
				v := strings.TrimRight(link.URL, "/")
				if seen[v] || c.exclude.IsExcluded(v) {
					continue
				}
				queue = append(queue, frontierItem{url: v, depth: item.depth + 1})
			}
		}
	}

	zap.L().Debug("crawl: finished",
		zap.String("host", host),
		zap.Int("visited", len(seen)),
		zap.Int("kept", len(kept)),
	)
	return kept
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
