package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearest-stops/stopsync/internal/config"
	"github.com/nearest-stops/stopsync/internal/model"
	"github.com/nearest-stops/stopsync/internal/site"
	"github.com/nearest-stops/stopsync/internal/snapshot"
)

type stubFetcher struct {
	pages    map[string]string
	blobs    map[string][]byte
	failOnce map[string]bool
	seen     []string
}

func (f *stubFetcher) FetchString(_ context.Context, url string) (string, error) {
	f.seen = append(f.seen, url)
	if f.failOnce[url] {
		delete(f.failOnce, url)
		return "", assert.AnError
	}
	body, ok := f.pages[url]
	if !ok {
		return "", assert.AnError
	}
	return body, nil
}

func (f *stubFetcher) FetchBytes(_ context.Context, url string) ([]byte, error) {
	f.seen = append(f.seen, url)
	blob, ok := f.blobs[url]
	if !ok {
		return nil, assert.AnError
	}
	return blob, nil
}

type stubExtractor struct {
	text string
	err  error
}

func (e *stubExtractor) ExtractText(_ context.Context, _ []byte) (string, error) {
	return e.text, e.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Data:    config.DataConfig{Dir: t.TempDir()},
		Crawl:   config.CrawlConfig{MaxPages: 50, MaxDepth: 2},
		Geocode: config.GeocodeConfig{Enabled: false, Delay: 0.001},
	}
}

const listingHTML = `<html><body>
<div class="entry-content">
  <a href="https://wro.example.test/rozklady-jazdy/linia-1/">Linia 1</a>
  <a href="https://wro.example.test/category/inne/">Kategoria</a>
</div>
</body></html>`

const routeHTML = `<html><body>
<h1>Linia 1</h1>
<table><tr>
  <td>08:15 09:45</td>
  <td><a href="https://www.openstreetmap.org/?mlat=51.1093&mlon=17.0386">Rynek</a></td>
</tr><tr>
  <td>08:25</td>
  <td><a href="https://www.openstreetmap.org/?mlat=51.0989&mlon=17.0365">Dworzec</a></td>
</tr></table>
</body></html>`

func listingSite() site.Site {
	return site.Site{
		Code:    "wro1",
		Mode:    site.ModeListing,
		Listing: "https://wro.example.test/rozklady-jazdy/",
	}
}

func TestRunCollectsListingSite(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	fetch := &stubFetcher{pages: map[string]string{
		"https://wro.example.test/rozklady-jazdy/":         listingHTML,
		"https://wro.example.test/rozklady-jazdy/linia-1/": routeHTML,
	}}
	p := New(cfg, fetch, []site.Site{listingSite()}, nil, nil, nil)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.ZeroStops)
	require.Len(t, res.Snapshot.Stops, 2)

	assert.Equal(t, "WRO1", res.Snapshot.Stops[0].FC)
	assert.Equal(t, "wro1-linia-1", res.Snapshot.Stops[0].RouteSlug)
	assert.Equal(t, "Dworzec", res.Snapshot.Stops[0].StopName, "canonical sort by name")
	assert.Equal(t, "Rynek", res.Snapshot.Stops[1].StopName)
	assert.Equal(t, []string{"08:15", "09:45"}, res.Snapshot.Stops[1].ContextTimes)

	assert.Equal(t, 1, res.Report.RoutesTotalNew)
	assert.Equal(t, 2, res.Report.StopsTotalNew)
	assert.Len(t, res.Report.NewStops, 2)

	// Excluded category link was never fetched.
	assert.NotContains(t, fetch.seen, "https://wro.example.test/category/inne/")

	saved, err := snapshot.Load(filepath.Join(cfg.Data.Dir, "stops.json"))
	require.NoError(t, err)
	assert.Len(t, saved.Stops, 2)
}

func TestRunZeroStopsPreservesSnapshot(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	snapPath := filepath.Join(cfg.Data.Dir, "stops.json")
	prev := &model.Snapshot{
		Generated: 1756500000,
		Stops: []model.ResolvedStop{
			{FC: "WRO", Route: "Linia 1", RouteSlug: "wro-linia-1", StopName: "Rynek", Lat: 51.1, Lon: 17.03},
		},
	}
	require.NoError(t, snapshot.Save(snapPath, prev))
	before, err := os.ReadFile(snapPath)
	require.NoError(t, err)

	// Every fetch fails, so collection yields nothing.
	p := New(cfg, &stubFetcher{}, []site.Site{listingSite()}, nil, nil, nil)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.ZeroStops)
	assert.Empty(t, res.Report.NewStops)
	assert.Empty(t, res.Report.RemovedStops)
	assert.Equal(t, 1, res.Report.StopsTotalNew)

	after, err := os.ReadFile(snapPath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "snapshot file must be untouched")
}

func TestRunPDFPreemptsHTML(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.PDF.ListingURL = "https://transport.example.test/employee-transport.html"

	pdfListing := `<html><body><a href="/rozklady/linia-5.pdf">Linia 5</a></body></html>`
	fetch := &stubFetcher{
		pages: map[string]string{
			cfg.PDF.ListingURL: pdfListing,
		},
		blobs: map[string][]byte{
			"https://transport.example.test/rozklady/linia-5.pdf": []byte("%PDF-stub"),
		},
	}
	extract := &stubExtractor{text: "Linia 5 Wroclaw\n08:15 Rynek 51.1100, 17.0300\n09:00 Dworzec 51.0989, 17.0365\n"}

	p := New(cfg, fetch, []site.Site{listingSite()}, extract, nil, nil)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Snapshot.Stops, 2)
	assert.Equal(t, "UNKNOWN", res.Snapshot.Stops[0].FC)
	assert.Equal(t, "unknown-linia-5-wroclaw", res.Snapshot.Stops[0].RouteSlug)

	// The HTML listing was never consulted.
	assert.NotContains(t, fetch.seen, "https://wro.example.test/rozklady-jazdy/")
}

func TestRunPDFCarrierFromURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.PDF.ListingURL = "https://transport.example.test/employee-transport.html"

	pdfListing := `<html><body><a href="/rozklady/wro3-linia-12.pdf">Linia 12</a></body></html>`
	fetch := &stubFetcher{
		pages: map[string]string{
			cfg.PDF.ListingURL: pdfListing,
		},
		blobs: map[string][]byte{
			"https://transport.example.test/rozklady/wro3-linia-12.pdf": []byte("%PDF-stub"),
		},
	}
	// The body text names no carrier; only the URL does.
	extract := &stubExtractor{text: "Linia 12\n08:15 Rynek 51.1100, 17.0300\n"}
	sites := []site.Site{{Code: "wro3", Mode: site.ModeListing, Listing: "https://wro3.example.test/rozklady-jazdy/"}}

	p := New(cfg, fetch, sites, extract, nil, nil)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Snapshot.Stops, 1)
	assert.Equal(t, "WRO3", res.Snapshot.Stops[0].FC)
	assert.Equal(t, "wro3-linia-12", res.Snapshot.Stops[0].RouteSlug)
}

func TestRunPDFUnknownCarrierUsesFirstPriorEntry(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.PDF.ListingURL = "https://transport.example.test/employee-transport.html"

	// Two prior entries for the same name; the first recorded one must win
	// when the new route's carrier is unknown.
	require.NoError(t, snapshot.Save(filepath.Join(cfg.Data.Dir, "stops.json"), &model.Snapshot{
		Generated: 1756500000,
		Stops: []model.ResolvedStop{
			{FC: "KTW1", Route: "Linia 3", RouteSlug: "ktw1-linia-3", StopName: "Rynek", Lat: 50.0, Lon: 19.0},
			{FC: "UNKNOWN", Route: "Stare", RouteSlug: "unknown-stare", StopName: "Rynek", Lat: 51.0, Lon: 17.0},
		},
	}))

	pdfListing := `<html><body><a href="/rozklady/linia-3.pdf">Linia 3</a></body></html>`
	fetch := &stubFetcher{
		pages: map[string]string{
			cfg.PDF.ListingURL: pdfListing,
		},
		blobs: map[string][]byte{
			"https://transport.example.test/rozklady/linia-3.pdf": []byte("%PDF-stub"),
		},
	}
	extract := &stubExtractor{text: "Linia 3\n08:15 Rynek\n"}

	p := New(cfg, fetch, []site.Site{listingSite()}, extract, nil, nil)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Snapshot.Stops, 1)
	assert.Equal(t, "UNKNOWN", res.Snapshot.Stops[0].FC)
	assert.Equal(t, "Rynek", res.Snapshot.Stops[0].StopName)
	assert.InDelta(t, 50.0, res.Snapshot.Stops[0].Lat, 1e-9)
	assert.InDelta(t, 19.0, res.Snapshot.Stops[0].Lon, 1e-9)
}

func TestRunSharedListingRetriedAfterFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	listing := "https://wro.example.test/rozklady-jazdy/"
	shared := []site.Site{
		{Code: "wro1", Mode: site.ModeListing, Listing: listing, SharedLabel: "WRO"},
		{Code: "wro2", Mode: site.ModeListing, Listing: listing, SharedLabel: "WRO"},
	}

	// The first listing fetch fails; the next alias must retry it.
	fetch := &stubFetcher{
		pages: map[string]string{
			listing: listingHTML,
			"https://wro.example.test/rozklady-jazdy/linia-1/": routeHTML,
		},
		failOnce: map[string]bool{listing: true},
	}
	p := New(cfg, fetch, shared, nil, nil, nil)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Snapshot.Stops, 2)
	assert.Equal(t, "WRO", res.Snapshot.Stops[0].FC)
	assert.Equal(t, "wro-linia-1", res.Snapshot.Stops[0].RouteSlug)

	fetches := 0
	for _, u := range fetch.seen {
		if u == listing {
			fetches++
		}
	}
	assert.Equal(t, 2, fetches, "failed shared listing is retried under the next alias")
}

func TestRunDiffAgainstPrevious(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	require.NoError(t, snapshot.Save(filepath.Join(cfg.Data.Dir, "stops.json"), &model.Snapshot{
		Generated: 1756500000,
		Stops: []model.ResolvedStop{
			{FC: "WRO1", Route: "Linia 1", RouteSlug: "wro1-linia-1", StopName: "Rynek", Lat: 51.1093, Lon: 17.0386},
			{FC: "WRO1", Route: "Linia 9", RouteSlug: "wro1-linia-9", StopName: "Zajezdnia", Lat: 51.0, Lon: 17.0},
		},
	}))

	fetch := &stubFetcher{pages: map[string]string{
		"https://wro.example.test/rozklady-jazdy/":         listingHTML,
		"https://wro.example.test/rozklady-jazdy/linia-1/": routeHTML,
	}}
	p := New(cfg, fetch, []site.Site{listingSite()}, nil, nil, nil)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Report.NewStops, 1)
	assert.Equal(t, "Dworzec", res.Report.NewStops[0].StopName)
	require.Len(t, res.Report.RemovedStops, 1)
	assert.Equal(t, "Zajezdnia", res.Report.RemovedStops[0].StopName)
	require.Len(t, res.Report.RemovedRoutes, 1)
	assert.Equal(t, "wro1-linia-9", res.Report.RemovedRoutes[0].RouteSlug)
	assert.Empty(t, res.Report.NewRoutes)
}
