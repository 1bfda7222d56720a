// Package resolve assigns final coordinates to stop candidates through a
// three-tier fallback: inline parse, prior-snapshot index, external geocoder.
package resolve

import (
	"context"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nearest-stops/stopsync/internal/config"
	"github.com/nearest-stops/stopsync/internal/model"
)

// Geocoder is the external geocoding capability.
type Geocoder interface {
	Search(ctx context.Context, name string) (*model.LatLon, error)
}

// Resolver resolves stop coordinates. Not safe for concurrent use; the
// pipeline is single-threaded by design.
type Resolver struct {
	prior    PriorIndex
	cache    *Cache
	geocoder Geocoder
	limiter  *rate.Limiter
	enabled  bool
	bounds   *geom.Bounds
}

// NewResolver creates a Resolver. The limiter enforces the mandatory spacing
// between live geocoder calls; it blocks the calling flow, it is not
// advisory.
func NewResolver(prior PriorIndex, cache *Cache, geocoder Geocoder, cfg config.GeocodeConfig) *Resolver {
	var bounds *geom.Bounds
	if cfg.MaxLat > cfg.MinLat && cfg.MaxLon > cfg.MinLon {
		bounds = geom.NewBounds(geom.XY).Set(cfg.MinLon, cfg.MinLat, cfg.MaxLon, cfg.MaxLat)
	}
	return &Resolver{
		prior:    prior,
		cache:    cache,
		geocoder: geocoder,
		limiter:  rate.NewLimiter(rate.Every(cfg.DelayInterval()), 1),
		enabled:  cfg.Enabled,
		bounds:   bounds,
	}
}

// Resolve returns the coordinate for a stop, or nil when no tier can supply
// one. Tier order: inline coordinate, prior-snapshot index, geocoder behind
// the cache. fcLabel may be empty for unknown carriers.
func (r *Resolver) Resolve(ctx context.Context, stopName, fcLabel string, inline *model.LatLon) *model.LatLon {
	if inline != nil {
		return inline
	}

	key := NormalizeName(stopName)
	if ll := r.prior.Lookup(key, fcLabel); ll != nil {
		return ll
	}

	return r.geocode(ctx, stopName, key)
}

func (r *Resolver) geocode(ctx context.Context, stopName, key string) *model.LatLon {
	if !r.enabled {
		return nil
	}

	if ll, _, ok := r.cache.Get(key); ok {
		return ll
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil
	}

	ll, err := r.geocoder.Search(ctx, stopName)
	if err != nil {
		zap.L().Warn("resolve: geocode failed",
			zap.String("stop", stopName),
			zap.Error(err),
		)
		r.cache.Put(key, nil)
		return nil
	}
	if ll != nil && !r.plausible(*ll) {
		zap.L().Warn("resolve: geocode hit outside country bounds",
			zap.String("stop", stopName),
			zap.Float64("lat", ll.Lat),
			zap.Float64("lon", ll.Lon),
		)
		ll = nil
	}

	r.cache.Put(key, ll)
	return ll
}

// plausible checks a coordinate against the configured country bounding box.
func (r *Resolver) plausible(ll model.LatLon) bool {
	if r.bounds == nil {
		return true
	}
	return r.bounds.OverlapsPoint(geom.XY, geom.Coord{ll.Lon, ll.Lat})
}
