package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/nearest-stops/stopsync/internal/model"
	"github.com/nearest-stops/stopsync/internal/page"
	"github.com/nearest-stops/stopsync/internal/pdf"
	"github.com/nearest-stops/stopsync/internal/resolve"
	"github.com/nearest-stops/stopsync/internal/site"
)

// collectPDF harvests routes from the published PDF timetables: fetch the
// listing, download each linked PDF, extract its text, and parse stop lines.
// Candidates without an inline coordinate go through the resolver; stops no
// tier can place are dropped.
func (p *Pipeline) collectPDF(ctx context.Context, resolver *resolve.Resolver) []model.Route {
	listing := p.cfg.PDF.ListingURL
	if listing == "" || p.extract == nil {
		return nil
	}

	body, err := p.fetch.FetchString(ctx, listing)
	if err != nil {
		zap.L().Warn("pipeline: pdf listing fetch failed",
			zap.String("url", listing),
			zap.Error(err),
		)
		return nil
	}

	links := page.CollectPDFLinks(body, listing)
	zap.L().Info("pipeline: pdf listing scanned",
		zap.String("url", listing),
		zap.Int("pdfs", len(links)),
	)

	codes := site.Codes(p.sites)
	var routes []model.Route
	for _, link := range links {
		if ctx.Err() != nil {
			break
		}
		if route := p.parsePDF(ctx, link, resolver, codes); route != nil {
			routes = append(routes, *route)
		}
	}
	return routes
}

// parsePDF turns one PDF document into a route. Fetch, extraction, and parse
// failures are logged and yield nil.
func (p *Pipeline) parsePDF(ctx context.Context, link model.Link, resolver *resolve.Resolver, codes []string) *model.Route {
	data, err := p.fetch.FetchBytes(ctx, link.URL)
	if err != nil {
		zap.L().Warn("pipeline: pdf download failed",
			zap.String("url", link.URL),
			zap.Error(err),
		)
		return nil
	}

	text, err := p.extract.ExtractText(ctx, data)
	if err != nil {
		zap.L().Warn("pipeline: pdf text extraction failed",
			zap.String("url", link.URL),
			zap.Error(err),
		)
		return nil
	}

	candidates := pdf.ParseStopLines(text, link.URL, p.cfg.PDF.SkipKeywords)
	if len(candidates) == 0 {
		zap.L().Debug("pipeline: pdf yielded no stops", zap.String("url", link.URL))
		return nil
	}

	title := pdf.InferTitle(link.URL, pdf.FirstLines(text, 5))

	// Carrier detection scans the inferred title first, then the PDF URL.
	fc := pdf.DetectFC(title, codes)
	if fc == "" {
		fc = pdf.DetectFC(link.URL, codes)
	}
	if fc == "" {
		fc = unknownFC
	}

	// An unknown carrier gets no carrier-preferenced prior lookup; the
	// route itself still carries the UNKNOWN label.
	priorLabel := fc
	if fc == unknownFC {
		priorLabel = ""
	}

	var stops []model.StopRow
	for _, cand := range candidates {
		ll := resolver.Resolve(ctx, cand.Name, priorLabel, cand.Inline)
		if ll == nil {
			zap.L().Debug("pipeline: pdf stop unresolved, dropped",
				zap.String("stop", cand.Name),
				zap.String("url", link.URL),
			)
			continue
		}
		stops = append(stops, model.StopRow{
			StopName:     cand.Name,
			Lat:          ll.Lat,
			Lon:          ll.Lon,
			URL:          cand.SourceURL,
			ContextTimes: cand.ContextTimes,
		})
	}
	if len(stops) == 0 {
		return nil
	}

	return &model.Route{
		FC:     fc,
		Title:  title,
		Slug:   page.RouteSlug(strings.ToLower(fc), title),
		Source: link.URL,
		Stops:  stops,
	}
}
