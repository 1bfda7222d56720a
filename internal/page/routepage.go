package page

import (
	"regexp"
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/net/html"

	"github.com/nearest-stops/stopsync/internal/model"
	"github.com/nearest-stops/stopsync/internal/osm"
)

var timeRe = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)

// blockAncestors are the block-level elements searched for context times.
var blockAncestors = map[string]bool{"tr": true, "li": true, "p": true, "div": true}

// ParseRoute turns one HTML route page into a Route. Map-service anchors
// carrying a resolvable coordinate become stop rows; the stop name is the
// anchor text and the context times are the HH:MM tokens of the nearest
// enclosing block ancestor. A page yielding zero rows is a parse miss and
// returns nil.
func ParseRoute(htmlStr, pageURL, fcLabel, slugPrefix string) *model.Route {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return nil
	}

	var stops []model.StopRow
	walk(doc, func(n *html.Node, ancestors []*html.Node) {
		href, ok := anchorHref(n)
		if !ok || !strings.Contains(href, osm.Marker) {
			return
		}
		ll := osm.ExtractFromLink(href)
		if ll == nil {
			return
		}

		scope := nearestBlock(ancestors)
		if scope == nil {
			scope = doc
		}
		stops = append(stops, model.StopRow{
			StopName:     nodeText(n),
			Lat:          ll.Lat,
			Lon:          ll.Lon,
			URL:          href,
			ContextTimes: Times(nodeText(scope)),
		})
	})

	if len(stops) == 0 {
		return nil
	}

	title := firstHeading(doc)
	if title == "" {
		title = pageURL
	}

	return &model.Route{
		FC:     fcLabel,
		Title:  title,
		Slug:   RouteSlug(slugPrefix, title),
		Source: pageURL,
		Stops:  stops,
	}
}

// RouteSlug derives the deterministic URL-safe slug for a route.
func RouteSlug(prefix, title string) string {
	return slug.Make(prefix + "-" + title)
}

// Times extracts all HH:MM tokens from text, deduplicated and sorted.
func Times(text string) []string {
	found := timeRe.FindAllString(text, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(found))
	var out []string
	for _, t := range found {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// nearestBlock returns the innermost block-level ancestor.
func nearestBlock(ancestors []*html.Node) *html.Node {
	for i := len(ancestors) - 1; i >= 0; i-- {
		if blockAncestors[ancestors[i].Data] {
			return ancestors[i]
		}
	}
	return nil
}

// firstHeading returns the text of the first h1 or h2 in document order.
func firstHeading(doc *html.Node) string {
	var title string
	walk(doc, func(n *html.Node, _ []*html.Node) {
		if title != "" {
			return
		}
		if n.Data == "h1" || n.Data == "h2" {
			title = nodeText(n)
		}
	})
	return title
}
