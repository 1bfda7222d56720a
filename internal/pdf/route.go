package pdf

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nearest-stops/stopsync/internal/model"
	"github.com/nearest-stops/stopsync/internal/osm"
)

var (
	pdfTimeRe = regexp.MustCompile(`\b\d{1,2}[:.]\d{2}\b`)
	spaceRe   = regexp.MustCompile(`\s+`)
	pdfExtRe  = regexp.MustCompile(`(?i)\.pdf$`)
)

// nameTrimCutset strips the separator debris left after removing times and
// coordinates from a line.
const nameTrimCutset = " -–:;|"

// ParseStopLines turns extracted PDF text into stop candidates, one per
// surviving line. skipKeywords are lowercase substrings marking header and
// legend lines.
func ParseStopLines(text, sourceURL string, skipKeywords []string) []model.StopCandidate {
	var stops []model.StopCandidate
	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(spaceRe.ReplaceAllString(rawLine, " "))
		if utf8.RuneCountInString(line) < 3 {
			continue
		}
		if containsAny(strings.ToLower(line), skipKeywords) {
			continue
		}

		var times []string
		for _, t := range pdfTimeRe.FindAllString(line, -1) {
			times = append(times, strings.ReplaceAll(t, ".", ":"))
		}

		inline := osm.ExtractFromText(line)
		name := pdfTimeRe.ReplaceAllString(line, "")
		if inline != nil {
			name = osm.InlinePattern().ReplaceAllString(name, "")
		}

		name = strings.Trim(spaceRe.ReplaceAllString(name, " "), nameTrimCutset)
		if utf8.RuneCountInString(name) < 3 {
			continue
		}

		stops = append(stops, model.StopCandidate{
			Name:         name,
			ContextTimes: dedupeSorted(times),
			Inline:       inline,
			SourceURL:    sourceURL,
		})
	}
	return stops
}

// FirstLines returns the first n non-blank lines of text.
func FirstLines(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) >= n {
			break
		}
	}
	return out
}

// InferTitle derives a route title for a PDF: the first of the given lines
// that is at least 4 characters and contains a letter wins; otherwise the
// percent-decoded filename with its extension stripped and separators
// replaced by spaces; otherwise the URL itself.
func InferTitle(pdfURL string, firstLines []string) string {
	for _, line := range firstLines {
		if utf8.RuneCountInString(line) >= 4 && containsLetter(line) {
			return strings.TrimSpace(line)
		}
	}

	base := filenameBase(pdfURL)
	if base != "" {
		return base
	}
	return pdfURL
}

// DetectFC scans text for any of the carrier codes, case-insensitive.
// Returns the uppercased code, or "" when none matches.
func DetectFC(text string, codes []string) string {
	lowered := strings.ToLower(text)
	for _, code := range codes {
		if strings.Contains(lowered, strings.ToLower(code)) {
			return strings.ToUpper(code)
		}
	}
	return ""
}

// filenameBase returns the cleaned PDF filename portion of a URL.
func filenameBase(pdfURL string) string {
	u, err := url.Parse(pdfURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = pdfExtRe.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func dedupeSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
