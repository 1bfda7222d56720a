package crawl

import "strings"

// defaultExcludeSegments filter category/tag/pagination URLs that never
// carry route content.
var defaultExcludeSegments = []string{"/category/", "/kategoria/", "/tag/", "/page/"}

// SegmentMatcher filters URLs containing any of a set of path segments.
type SegmentMatcher struct {
	segments []string
}

// NewSegmentMatcher creates a SegmentMatcher. Falls back to the default
// segment set if none are provided.
func NewSegmentMatcher(segments []string) *SegmentMatcher {
	if len(segments) == 0 {
		segments = defaultExcludeSegments
	}
	lowered := make([]string, len(segments))
	for i, s := range segments {
		lowered[i] = strings.ToLower(s)
	}
	return &SegmentMatcher{segments: lowered}
}

// IsExcluded reports whether the URL contains any excluded segment.
func (m *SegmentMatcher) IsExcluded(rawURL string) bool {
	lowered := strings.ToLower(rawURL)
	for _, seg := range m.segments {
		if strings.Contains(lowered, seg) {
			return true
		}
	}
	return false
}
