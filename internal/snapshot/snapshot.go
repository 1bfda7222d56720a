// Package snapshot canonicalizes the collected stop set and diffs it against
// the previously persisted run.
package snapshot

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/nearest-stops/stopsync/internal/model"
	"github.com/nearest-stops/stopsync/internal/page"
)

// stopKey is the canonical identity of one stop. Coordinates are rounded to
// six decimals so float noise from different sources cannot split a stop.
type stopKey struct {
	FC        string
	RouteSlug string
	StopName  string
	Lat       float64
	Lon       float64
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func keyOf(s model.ResolvedStop) stopKey {
	return stopKey{
		FC:        s.FC,
		RouteSlug: s.RouteSlug,
		StopName:  s.StopName,
		Lat:       round6(s.Lat),
		Lon:       round6(s.Lon),
	}
}

func (k stopKey) less(o stopKey) bool {
	if k.FC != o.FC {
		return k.FC < o.FC
	}
	if k.RouteSlug != o.RouteSlug {
		return k.RouteSlug < o.RouteSlug
	}
	if k.StopName != o.StopName {
		return k.StopName < o.StopName
	}
	if k.Lat != o.Lat {
		return k.Lat < o.Lat
	}
	return k.Lon < o.Lon
}

// Flatten turns collected routes into the persisted row form.
func Flatten(routes []model.Route) []model.ResolvedStop {
	var out []model.ResolvedStop
	for _, r := range routes {
		for _, st := range r.Stops {
			out = append(out, model.ResolvedStop{
				FC:           r.FC,
				Route:        r.Title,
				RouteSlug:    r.Slug,
				Source:       r.Source,
				StopName:     st.StopName,
				Lat:          st.Lat,
				Lon:          st.Lon,
				URL:          st.URL,
				ContextTimes: st.ContextTimes,
			})
		}
	}
	return out
}

// Dedupe removes repeated stops by canonical key, first occurrence wins.
// Scan order is preserved; Dedupe is idempotent.
func Dedupe(stops []model.ResolvedStop) []model.ResolvedStop {
	seen := make(map[stopKey]struct{}, len(stops))
	out := make([]model.ResolvedStop, 0, len(stops))
	for _, s := range stops {
		k := keyOf(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FanOutShared clones every stop carrying the shared regional label once per
// concrete carrier, recomputing the route slug per clone. The shared originals
// are dropped. Disabled by default at the pipeline level.
func FanOutShared(stops []model.ResolvedStop, sharedLabel string, carriers []string) []model.ResolvedStop {
	out := make([]model.ResolvedStop, 0, len(stops))
	for _, s := range stops {
		if s.FC != sharedLabel {
			out = append(out, s)
			continue
		}
		for _, fc := range carriers {
			clone := s
			clone.FC = fc
			clone.RouteSlug = page.RouteSlug(fc, s.Route)
			out = append(out, clone)
		}
	}
	return out
}

// Sort orders stops by the canonical key ascending. The sort is stable so
// equal keys keep their scan order.
func Sort(stops []model.ResolvedStop) {
	sort.SliceStable(stops, func(i, j int) bool {
		return keyOf(stops[i]).less(keyOf(stops[j]))
	})
}

// Load reads a snapshot file. A missing file yields an empty snapshot.
func Load(path string) (*model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &model.Snapshot{}, nil
		}
		return nil, eris.Wrap(err, "snapshot: read")
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrap(err, "snapshot: parse")
	}
	return &snap, nil
}

// Save writes a snapshot file, creating parent directories.
func Save(path string, snap *model.Snapshot) error {
	return writeJSON(path, snap, "snapshot: write")
}

// SaveDiff writes a diff report file, creating parent directories.
func SaveDiff(path string, report *model.DiffReport) error {
	return writeJSON(path, report, "snapshot: write diff")
}

func writeJSON(path string, v any, action string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, action)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, action)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, action)
	}
	return nil
}
