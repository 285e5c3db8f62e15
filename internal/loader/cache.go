package loader

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenledger/cbio-forecast/internal/series"
	"github.com/greenledger/cbio-forecast/pkg/redis"
)

// CachedProvider serves repeated macro windows from Redis.
// With Redis disabled every call goes straight to the wrapped provider.
type CachedProvider struct {
	next  MacroProvider
	cache *redis.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedProvider wraps next with a Redis cache
func NewCachedProvider(next MacroProvider, cache *redis.Cache, ttl time.Duration, log zerolog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = redis.TTLDaily
	}
	return &CachedProvider{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   log.With().Str("component", "loader.cache").Logger(),
	}
}

// FetchCloses implements MacroProvider
func (c *CachedProvider) FetchCloses(ctx context.Context, ticker string, start, end time.Time) ([]series.Point, error) {
	key := redis.MacroKey(ticker, start.Format(series.DateLayout), end.Format(series.DateLayout))

	var points []series.Point
	found, err := c.cache.Get(ctx, key, &points)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Ignoring unreadable cache entry")
	}
	if found && err == nil {
		c.log.Debug().Str("key", key).Int("points", len(points)).Msg("Macro cache hit")
		return points, nil
	}

	points, err = c.next.FetchCloses(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}
	if len(points) > 0 {
		if err := c.cache.Set(ctx, key, points, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("Failed to cache macro series")
		}
	}
	return points, nil
}
