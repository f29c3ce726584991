package ephemeris

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/creator4ever-bot/geodac/internal/body"
	"github.com/creator4ever-bot/geodac/internal/metrics"
)

type cacheKey struct {
	body body.Body
	unix int64
	lat  float64
	lon  float64
}

// Cached memoizes an inner oracle. Repeated scans over the same grid, and
// the natal table, hit the cache instead of the series. Errors are not cached.
type Cached struct {
	inner Oracle
	lru   *expirable.LRU[cacheKey, float64]
}

// NewCached wraps inner with an LRU of at most size entries kept for ttl.
func NewCached(inner Oracle, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 65536
	}
	return &Cached{
		inner: inner,
		lru:   expirable.NewLRU[cacheKey, float64](size, nil, ttl),
	}
}

// Longitude implements Oracle.
func (c *Cached) Longitude(ctx context.Context, b body.Body, t time.Time, loc Location) (float64, error) {
	k := cacheKey{body: b, unix: t.UnixNano(), lat: loc.Lat, lon: loc.Lon}
	if v, ok := c.lru.Get(k); ok {
		metrics.IncCache(true)
		return v, nil
	}
	metrics.IncCache(false)

	v, err := c.inner.Longitude(ctx, b, t, loc)
	if err != nil {
		return 0, err
	}
	c.lru.Add(k, v)
	return v, nil
}

// Len returns the number of cached samples.
func (c *Cached) Len() int {
	return c.lru.Len()
}
