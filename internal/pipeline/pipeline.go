// Package pipeline orchestrates one collection run: discover route pages,
// extract stops, resolve coordinates, and diff against the previous snapshot.
package pipeline

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nearest-stops/stopsync/internal/config"
	"github.com/nearest-stops/stopsync/internal/crawl"
	"github.com/nearest-stops/stopsync/internal/model"
	"github.com/nearest-stops/stopsync/internal/osm"
	"github.com/nearest-stops/stopsync/internal/page"
	"github.com/nearest-stops/stopsync/internal/pdf"
	"github.com/nearest-stops/stopsync/internal/resolve"
	"github.com/nearest-stops/stopsync/internal/site"
	"github.com/nearest-stops/stopsync/internal/snapshot"
	"github.com/nearest-stops/stopsync/internal/store"
)

// Fetcher is the fetch capability the pipeline depends on. Per-host pacing
// and retry live behind it.
type Fetcher interface {
	FetchString(ctx context.Context, url string) (string, error)
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// unknownFC labels PDF routes whose text names no known carrier code.
const unknownFC = "UNKNOWN"

// Pipeline runs one end-to-end collection. Single-threaded; one fetch, PDF,
// or geocode call in flight at a time.
type Pipeline struct {
	cfg      *config.Config
	fetch    Fetcher
	sites    []site.Site
	extract  pdf.Extractor
	geocoder resolve.Geocoder
	runs     store.Store // nil disables run recording
}

// New assembles a Pipeline from its collaborators.
func New(cfg *config.Config, fetch Fetcher, sites []site.Site, extract pdf.Extractor, geocoder resolve.Geocoder, runs store.Store) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		fetch:    fetch,
		sites:    sites,
		extract:  extract,
		geocoder: geocoder,
		runs:     runs,
	}
}

// Result is the outcome of one run.
type Result struct {
	Snapshot  *model.Snapshot
	Report    *model.DiffReport
	ZeroStops bool
}

// Run executes one collection. The previous snapshot is only replaced when
// the run produced at least one stop; an empty collection leaves it untouched
// and reports no change.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	prev, err := snapshot.Load(p.snapshotPath())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load previous snapshot")
	}
	cache := resolve.LoadCache(p.cachePath())
	resolver := resolve.NewResolver(
		resolve.BuildPriorIndex(prev.Stops),
		cache,
		p.geocoder,
		p.cfg.Geocode,
	)

	run := p.startRun(ctx)

	routes := p.collect(ctx, resolver)
	stops := snapshot.Flatten(routes)
	stops = snapshot.Dedupe(stops)
	if p.cfg.Data.FanOutShared {
		stops = snapshot.FanOutShared(stops, p.cfg.Data.SharedLabel, p.cfg.Data.SharedClones)
		stops = snapshot.Dedupe(stops)
	}
	snapshot.Sort(stops)

	if err := cache.Save(p.cachePath()); err != nil {
		zap.L().Warn("pipeline: save geocode cache failed", zap.Error(err))
	}

	if len(stops) == 0 {
		zap.L().Warn("pipeline: collection produced zero stops, keeping previous snapshot",
			zap.Int("previous_stops", len(prev.Stops)),
		)
		report := snapshot.NoChange(prev.Stops)
		if err := snapshot.SaveDiff(p.diffPath(), report); err != nil {
			return nil, eris.Wrap(err, "pipeline: save diff")
		}
		p.failRun(ctx, run, eris.New("collection produced zero stops"))
		return &Result{Snapshot: prev, Report: report, ZeroStops: true}, nil
	}

	snap := &model.Snapshot{
		Generated: float64(time.Now().Unix()),
		Stops:     stops,
	}
	report := snapshot.Diff(prev.Stops, stops)

	if err := snapshot.Save(p.snapshotPath(), snap); err != nil {
		return nil, eris.Wrap(err, "pipeline: save snapshot")
	}
	if err := snapshot.SaveDiff(p.diffPath(), report); err != nil {
		return nil, eris.Wrap(err, "pipeline: save diff")
	}

	p.completeRun(ctx, run, store.RunResult{
		RoutesTotal:  report.RoutesTotalNew,
		StopsTotal:   report.StopsTotalNew,
		NewStops:     len(report.NewStops),
		RemovedStops: len(report.RemovedStops),
	})

	zap.L().Info("pipeline: run complete",
		zap.Int("routes", report.RoutesTotalNew),
		zap.Int("stops", report.StopsTotalNew),
		zap.Int("new", len(report.NewStops)),
		zap.Int("removed", len(report.RemovedStops)),
	)
	return &Result{Snapshot: snap, Report: report}, nil
}

// collect gathers all routes. A panic escaping collection is treated as an
// empty collection; the zero-stops guard then preserves the snapshot.
func (p *Pipeline) collect(ctx context.Context, resolver *resolve.Resolver) (routes []model.Route) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("pipeline: collection panicked", zap.Any("panic", r))
			routes = nil
		}
	}()

	if pdfRoutes := p.collectPDF(ctx, resolver); len(pdfRoutes) > 0 {
		zap.L().Info("pipeline: using PDF routes, skipping HTML collection",
			zap.Int("routes", len(pdfRoutes)),
		)
		return pdfRoutes
	}
	// HTML stops carry inline coordinates from their map anchors, so the
	// resolver is only needed on the PDF path.
	return p.collectHTML(ctx)
}

// collectHTML walks the site table. Sites sharing a listing label are
// collected once, by the first site carrying the label.
func (p *Pipeline) collectHTML(ctx context.Context) []model.Route {
	var routes []model.Route
	sharedDone := make(map[string]bool)

	for _, s := range p.sites {
		if ctx.Err() != nil {
			break
		}
		if s.SharedLabel != "" && sharedDone[s.SharedLabel] {
			continue
		}

		pages := p.discover(ctx, s)
		zap.L().Info("pipeline: site discovered",
			zap.String("site", s.Code),
			zap.String("mode", s.Mode.String()),
			zap.Int("pages", len(pages)),
		)
		// Mark the shared label only once discovery yielded pages, so a
		// transient listing failure is retried under the next alias.
		if s.SharedLabel != "" && len(pages) > 0 {
			sharedDone[s.SharedLabel] = true
		}

		for _, pg := range pages {
			if ctx.Err() != nil {
				break
			}
			route := p.parsePage(ctx, pg.URL, s)
			if route != nil {
				routes = append(routes, *route)
			}
		}
	}
	return routes
}

// discover returns candidate route page URLs for one site.
func (p *Pipeline) discover(ctx context.Context, s site.Site) []model.Link {
	switch s.Mode {
	case site.ModeListing:
		return p.discoverListing(ctx, s)
	case site.ModeCrawl:
		crawler := crawl.New(p.fetch, p.cfg.Crawl)
		return crawler.Collect(ctx, s.Seeds)
	default:
		return p.discoverProbe(ctx, s)
	}
}

func (p *Pipeline) discoverListing(ctx context.Context, s site.Site) []model.Link {
	body, err := p.fetch.FetchString(ctx, s.Listing)
	if err != nil {
		zap.L().Warn("pipeline: listing fetch failed",
			zap.String("site", s.Code),
			zap.String("url", s.Listing),
			zap.Error(err),
		)
		return nil
	}

	exclude := crawl.NewSegmentMatcher(p.cfg.Crawl.ExcludeSegments)
	base := strings.TrimRight(s.Listing, "/")

	var out []model.Link
	for _, link := range page.CollectLinks(body, s.Listing, hostOf(s.Listing), true) {
		u := strings.TrimRight(link.URL, "/")
		if u == base || exclude.IsExcluded(u) {
			continue
		}
		out = append(out, link)
	}
	return out
}

// discoverProbe fetches the site root and probes each same-host link for the
// map marker.
func (p *Pipeline) discoverProbe(ctx context.Context, s site.Site) []model.Link {
	root := s.RootURL()
	body, err := p.fetch.FetchString(ctx, root)
	if err != nil {
		zap.L().Warn("pipeline: root fetch failed",
			zap.String("site", s.Code),
			zap.String("url", root),
			zap.Error(err),
		)
		return nil
	}

	exclude := crawl.NewSegmentMatcher(p.cfg.Crawl.ExcludeSegments)

	var out []model.Link
	for _, link := range page.CollectLinks(body, root, hostOf(root), false) {
		if ctx.Err() != nil {
			break
		}
		if exclude.IsExcluded(link.URL) {
			continue
		}
		probe, err := p.fetch.FetchString(ctx, link.URL)
		if err != nil {
			zap.L().Warn("pipeline: probe fetch failed",
				zap.String("url", link.URL),
				zap.Error(err),
			)
			continue
		}
		if osm.HasMarker(probe) {
			out = append(out, link)
		}
	}
	return out
}

// parsePage fetches and parses one route page. Failures and parse misses
// yield nil, never an error.
func (p *Pipeline) parsePage(ctx context.Context, pageURL string, s site.Site) *model.Route {
	body, err := p.fetch.FetchString(ctx, pageURL)
	if err != nil {
		zap.L().Warn("pipeline: route page fetch failed",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		return nil
	}
	route := page.ParseRoute(body, pageURL, s.Label(), s.SlugPrefix())
	if route == nil {
		zap.L().Debug("pipeline: page yielded no stops", zap.String("url", pageURL))
	}
	return route
}

func (p *Pipeline) startRun(ctx context.Context) *store.Run {
	if p.runs == nil {
		return nil
	}
	run, err := p.runs.CreateRun(ctx)
	if err != nil {
		zap.L().Warn("pipeline: record run start failed", zap.Error(err))
		return nil
	}
	return run
}

func (p *Pipeline) completeRun(ctx context.Context, run *store.Run, result store.RunResult) {
	if run == nil {
		return
	}
	if err := p.runs.CompleteRun(ctx, run.ID, result); err != nil {
		zap.L().Warn("pipeline: record run result failed", zap.Error(err))
	}
}

func (p *Pipeline) failRun(ctx context.Context, run *store.Run, runErr error) {
	if run == nil {
		return
	}
	if err := p.runs.FailRun(ctx, run.ID, runErr); err != nil {
		zap.L().Warn("pipeline: record run failure failed", zap.Error(err))
	}
}

func (p *Pipeline) snapshotPath() string {
	return filepath.Join(p.cfg.Data.Dir, "stops.json")
}

func (p *Pipeline) diffPath() string {
	return filepath.Join(p.cfg.Data.Dir, "changes.json")
}

func (p *Pipeline) cachePath() string {
	return filepath.Join(p.cfg.Data.Dir, "geocode_cache.json")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
