package cache

import (
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

// DefaultTTL is how long a stored record stays visible.
const DefaultTTL = 600 * time.Second

// Cache holds normalized weather records keyed by location and unit system.
// Get returns a record only while it is younger than the TTL; Sweep drops the rest.
type Cache interface {
	Get(loc models.Location, system models.UnitSystem) (models.WeatherRecord, bool)
	Lookup(loc models.Location) (models.WeatherRecord, models.UnitSystem, bool)
	Put(loc models.Location, system models.UnitSystem, record models.WeatherRecord)
	Sweep() int
}

// Fingerprint returns the cache key for a location in a unit system.
// Coordinates are rounded to four decimals so equivalent requests share a key; the name is ignored.
func Fingerprint(loc models.Location, system models.UnitSystem) uint64 {
	buf := make([]byte, 0, 48)
	buf = strconv.AppendFloat(buf, loc.Lat, 'f', 4, 64)
	buf = append(buf, ',')
	buf = strconv.AppendFloat(buf, loc.Lon, 'f', 4, 64)
	buf = append(buf, '|')
	buf = append(buf, system...)
	return xxhash.Sum64(buf)
}

type entry struct {
	record   models.WeatherRecord
	storedAt time.Time
}

// MemoryCache is a mutex-guarded map. Entries are evicted only by Sweep.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[uint64]entry
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a MemoryCache.
type Option func(*MemoryCache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *MemoryCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source. Used by tests to step through expiry.
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache(opts ...Option) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[uint64]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *MemoryCache) TTL() time.Duration {
	return c.ttl
}

// Get returns a copy of the record stored under (loc, system) if it is younger than the TTL.
func (c *MemoryCache) Get(loc models.Location, system models.UnitSystem) (models.WeatherRecord, bool) {
	key := Fingerprint(loc, system)
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return models.WeatherRecord{}, false
	}
	return e.record.Clone(), true
}

// Lookup checks the metric fingerprint first, then imperial, and reports which one hit.
func (c *MemoryCache) Lookup(loc models.Location) (models.WeatherRecord, models.UnitSystem, bool) {
	for _, system := range []models.UnitSystem{models.Metric, models.Imperial} {
		if rec, ok := c.Get(loc, system); ok {
			return rec, system, true
		}
	}
	return models.WeatherRecord{}, "", false
}

// Put stores a copy of record, overwriting any entry under the same fingerprint.
func (c *MemoryCache) Put(loc models.Location, system models.UnitSystem, record models.WeatherRecord) {
	e := entry{record: record.Clone(), storedAt: c.now()}
	key := Fingerprint(loc, system)
	c.mu.Lock()
	c.entries[key] = e
	n := len(c.entries)
	c.mu.Unlock()
	observability.CacheEntries.Set(float64(n))
}

// Sweep removes every entry whose age is at least the TTL and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()
	if removed > 0 {
		observability.CacheEvictionsTotal.Add(float64(removed))
	}
	observability.CacheEntries.Set(float64(n))
	return removed
}

// Len returns the number of entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
