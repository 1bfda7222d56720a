package snapshot

import (
	"sort"
	"time"

	"github.com/nearest-stops/stopsync/internal/model"
)

// Diff computes the change set from prev to cur. Both inputs are taken as-is;
// callers dedupe first. Output slices are ordered by the canonical keys so
// the report is deterministic for a given pair of snapshots.
func Diff(prev, cur []model.ResolvedStop) *model.DiffReport {
	report := &model.DiffReport{
		Generated:      float64(time.Now().Unix()),
		RoutesTotalNew: len(routeSet(cur)),
		StopsTotalNew:  len(cur),
		NewRoutes:      []model.RouteKey{},
		RemovedRoutes:  []model.RouteKey{},
		NewStops:       []model.ResolvedStop{},
		RemovedStops:   []model.ResolvedStop{},
	}

	prevStops := stopIndex(prev)
	curStops := stopIndex(cur)
	for k, s := range curStops {
		if _, ok := prevStops[k]; !ok {
			report.NewStops = append(report.NewStops, s)
		}
	}
	for k, s := range prevStops {
		if _, ok := curStops[k]; !ok {
			report.RemovedStops = append(report.RemovedStops, s)
		}
	}

	prevRoutes := routeSet(prev)
	curRoutes := routeSet(cur)
	for k := range curRoutes {
		if _, ok := prevRoutes[k]; !ok {
			report.NewRoutes = append(report.NewRoutes, k)
		}
	}
	for k := range prevRoutes {
		if _, ok := curRoutes[k]; !ok {
			report.RemovedRoutes = append(report.RemovedRoutes, k)
		}
	}

	Sort(report.NewStops)
	Sort(report.RemovedStops)
	sortRouteKeys(report.NewRoutes)
	sortRouteKeys(report.RemovedRoutes)
	return report
}

// NoChange builds the report emitted when a collection run yields zero stops
// and the previous snapshot is left untouched.
func NoChange(prev []model.ResolvedStop) *model.DiffReport {
	return &model.DiffReport{
		Generated:      float64(time.Now().Unix()),
		RoutesTotalNew: len(routeSet(prev)),
		StopsTotalNew:  len(prev),
		NewRoutes:      []model.RouteKey{},
		RemovedRoutes:  []model.RouteKey{},
		NewStops:       []model.ResolvedStop{},
		RemovedStops:   []model.ResolvedStop{},
	}
}

// stopIndex maps canonical keys to the first record carrying each key, so
// diffed keys resolve back to full descriptive rows.
func stopIndex(stops []model.ResolvedStop) map[stopKey]model.ResolvedStop {
	idx := make(map[stopKey]model.ResolvedStop, len(stops))
	for _, s := range stops {
		k := keyOf(s)
		if _, ok := idx[k]; !ok {
			idx[k] = s
		}
	}
	return idx
}

func routeSet(stops []model.ResolvedStop) map[model.RouteKey]struct{} {
	set := make(map[model.RouteKey]struct{})
	for _, s := range stops {
		set[model.RouteKey{FC: s.FC, RouteSlug: s.RouteSlug}] = struct{}{}
	}
	return set
}

func sortRouteKeys(keys []model.RouteKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].FC != keys[j].FC {
			return keys[i].FC < keys[j].FC
		}
		return keys[i].RouteSlug < keys[j].RouteSlug
	})
}
