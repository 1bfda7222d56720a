// Package osm extracts coordinates from OpenStreetMap hrefs and free text.
package osm

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/nearest-stops/stopsync/internal/model"
)

// Marker is the substring that identifies a page as carrying an embedded
// map reference.
const Marker = "openstreetmap.org"

var (
	// mapFragRe matches the "map=<zoom>/<lat>/<lon>" URL fragment.
	mapFragRe = regexp.MustCompile(`(?:^|&)map=\d+/([+-]?[0-9.]+)/([+-]?[0-9.]+)(?:&|$)`)

	// inlineRe matches a free-text latitude/longitude pair: 1-2 integer
	// digits with >=4 fractional digits, a separator, then 1-3 integer
	// digits with >=4 fractional digits. Comma or dot decimals.
	inlineRe = regexp.MustCompile(`([+-]?\d{1,2}[.,]\d{4,})\s*[,;/\s]\s*([+-]?\d{1,3}[.,]\d{4,})`)

	spaceRe = regexp.MustCompile(`\s+`)
)

// InlinePattern exposes the inline coordinate regexp so parsers can strip a
// matched pair out of a line after extraction.
func InlinePattern() *regexp.Regexp { return inlineRe }

// HasMarker reports whether the document references the map service.
func HasMarker(html string) bool {
	return strings.Contains(html, Marker)
}

// ExtractFromLink parses a map-service href for a coordinate pair. It tries
// mlat/mlon query parameters first, then a map=<zoom>/<lat>/<lon> fragment.
// Malformed numerics yield nil, not an error.
func ExtractFromLink(href string) *model.LatLon {
	s := spaceRe.ReplaceAllString(strings.TrimSpace(href), "")
	u, err := url.Parse(s)
	if err != nil {
		return nil
	}

	if u.RawQuery != "" {
		q := u.Query()
		mlat, mlon := q.Get("mlat"), q.Get("mlon")
		if mlat != "" && mlon != "" {
			if ll := parsePair(mlat, mlon); ll != nil {
				return ll
			}
		}
	}

	if u.Fragment != "" {
		if m := mapFragRe.FindStringSubmatch(u.Fragment); m != nil {
			return parsePair(m[1], m[2])
		}
	}
	return nil
}

// ExtractFromText scans free text for the first coordinate-shaped substring.
func ExtractFromText(text string) *model.LatLon {
	m := inlineRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return parsePair(m[1], m[2])
}

// parsePair converts two decimal strings, normalizing comma decimals.
func parsePair(latStr, lonStr string) *model.LatLon {
	lat, err := strconv.ParseFloat(strings.ReplaceAll(latStr, ",", "."), 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(strings.ReplaceAll(lonStr, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &model.LatLon{Lat: lat, Lon: lon}
}
