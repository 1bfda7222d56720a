package resolve

import "github.com/nearest-stops/stopsync/internal/model"

// PriorEntry is one coordinate recorded for a stop name in the previous
// snapshot.
type PriorEntry struct {
	LatLon model.LatLon
	FC     string
}

// PriorIndex maps normalized stop names to their prior-snapshot coordinates.
type PriorIndex map[string][]PriorEntry

// BuildPriorIndex indexes the previous snapshot's stops by normalized name.
// Rows without a usable name are skipped.
func BuildPriorIndex(prev []model.ResolvedStop) PriorIndex {
	idx := make(PriorIndex)
	for _, s := range prev {
		name := NormalizeName(s.StopName)
		if name == "" {
			continue
		}
		idx[name] = append(idx[name], PriorEntry{
			LatLon: model.LatLon{Lat: s.Lat, Lon: s.Lon},
			FC:     s.FC,
		})
	}
	return idx
}

// Lookup returns the prior coordinate for a normalized name. With a non-empty
// fcLabel an entry from the same carrier is preferred; otherwise the first
// recorded entry wins.
func (idx PriorIndex) Lookup(normName, fcLabel string) *model.LatLon {
	entries, ok := idx[normName]
	if !ok || len(entries) == 0 {
		return nil
	}
	if fcLabel != "" {
		for _, e := range entries {
			if e.FC == fcLabel {
				ll := e.LatLon
				return &ll
			}
		}
	}
	ll := entries[0].LatLon
	return &ll
}
