// Package model holds the shared data types for the stop harvesting pipeline.
package model

// LatLon is a WGS84 coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Link is a discovered hyperlink with its anchor text.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// StopCandidate is a raw stop row emitted by a parser. Inline is nil when the
// source carried no coordinate; such candidates go through the resolver.
type StopCandidate struct {
	Name         string
	ContextTimes []string // sorted, deduplicated HH:MM strings
	Inline       *LatLon
	SourceURL    string
}

// StopRow is a coordinate-complete stop inside a Route.
type StopRow struct {
	StopName     string   `json:"stop_name"`
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	URL          string   `json:"url"`
	ContextTimes []string `json:"context_times"`
}

// Route is one published schedule with its ordered stop list.
type Route struct {
	FC     string    `json:"fc"`
	Title  string    `json:"route"`
	Slug   string    `json:"route_slug"`
	Source string    `json:"source"`
	Stops  []StopRow `json:"stops"`
}

// ResolvedStop is the flattened, coordinate-complete row persisted in the
// snapshot: a StopRow plus its route context.
type ResolvedStop struct {
	FC           string   `json:"fc"`
	Route        string   `json:"route"`
	RouteSlug    string   `json:"route_slug"`
	Source       string   `json:"source"`
	StopName     string   `json:"stop_name"`
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	URL          string   `json:"url,omitempty"`
	ContextTimes []string `json:"context_times,omitempty"`
}

// Snapshot is the sole persisted "current truth". It is replaced wholesale on
// each successful run, never merged in place.
type Snapshot struct {
	Generated float64        `json:"generated"` // epoch seconds
	Stops     []ResolvedStop `json:"stops"`
}

// RouteKey identifies a route for diffing.
type RouteKey struct {
	FC        string `json:"fc"`
	RouteSlug string `json:"route_slug"`
}

// DiffReport describes the change set between two snapshots.
type DiffReport struct {
	Generated      float64        `json:"generated"`
	RoutesTotalNew int            `json:"routes_total_new"`
	StopsTotalNew  int            `json:"stops_total_new"`
	NewRoutes      []RouteKey     `json:"new_routes"`
	RemovedRoutes  []RouteKey     `json:"removed_routes"`
	NewStops       []ResolvedStop `json:"new_stops"`
	RemovedStops   []ResolvedStop `json:"removed_stops"`
}
