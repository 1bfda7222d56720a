package resolve

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	wsRe    = regexp.MustCompile(`\s+`)
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
)

// NormalizeName canonicalizes a stop name for index and cache keys: NFC so
// composed and decomposed accents collide, lowercase, collapsed whitespace,
// punctuation stripped except hyphens.
func NormalizeName(name string) string {
	s := norm.NFC.String(name)
	s = strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
	s = strings.ToLower(s)
	s = punctRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
