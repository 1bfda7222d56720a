package resolve

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nearest-stops/stopsync/internal/model"
)

// cacheEntry is the persisted form of one geocode outcome. Nil lat/lon is a
// negative-cache entry recording a known-failing lookup.
type cacheEntry struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// Cache is the geocode cache: normalized stop name to outcome. It grows
// monotonically across runs and is never pruned here.
type Cache struct {
	entries map[string]cacheEntry
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// LoadCache reads the cache file. A missing or unreadable file yields an
// empty cache; a stale cache is an inconvenience, not a failure.
func LoadCache(path string) *Cache {
	c := NewCache()
	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		zap.L().Warn("resolve: corrupt geocode cache ignored",
			zap.String("path", path),
			zap.Error(err),
		)
		c.entries = make(map[string]cacheEntry)
	}
	return c
}

// Get returns the cached outcome for a key. negative is true for a recorded
// failed lookup; ok is false when the key was never cached.
func (c *Cache) Get(key string) (ll *model.LatLon, negative, ok bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false, false
	}
	if e.Lat == nil || e.Lon == nil {
		return nil, true, true
	}
	return &model.LatLon{Lat: *e.Lat, Lon: *e.Lon}, false, true
}

// Put records an outcome. A nil value is stored as a negative entry.
func (c *Cache) Put(key string, ll *model.LatLon) {
	if ll == nil {
		c.entries[key] = cacheEntry{}
		return
	}
	lat, lon := ll.Lat, ll.Lon
	c.entries[key] = cacheEntry{Lat: &lat, Lon: &lon}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }

// Save writes the cache as indented JSON, creating parent directories.
func (c *Cache) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "resolve: create cache dir")
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return eris.Wrap(err, "resolve: marshal cache")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "resolve: write cache")
	}
	return nil
}
