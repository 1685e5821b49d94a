package floorplans

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitewalk/sitewalk/internal/annotation"
)

// Redis key prefixes for cached marker lists and their generation counters.
const (
	markerCacheKeyPrefix = "markers:"
	markerGenKeyPrefix   = "markers:gen:"
)

// minGenTTL is the shortest lifetime of a generation counter. It must
// outlive every list written under it.
const minGenTTL = 24 * time.Hour

// MarkerCache holds the current marker list per floorplan page.
//
// Lists are stored per generation. Get reports the generation it read at
// and Set writes under that generation, so a list loaded before an
// Invalidate lands under a generation nobody reads any more.
type MarkerCache interface {
	Get(ctx context.Context, floorplanID string, page int) (markers []annotation.Marker, gen int64, ok bool)
	Set(ctx context.Context, floorplanID string, page int, gen int64, markers []annotation.Marker)
	Invalidate(ctx context.Context, floorplanID string, page int)
}

// redisMarkerCache stores marker lists as JSON strings with a TTL. Cache
// failures are logged and treated as misses; the database stays the source
// of truth.
type redisMarkerCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewMarkerCache creates a Redis-backed marker list cache. A nil client
// yields a cache that never hits.
func NewMarkerCache(rdb *redis.Client, ttl time.Duration) MarkerCache {
	if rdb == nil {
		return noCache{}
	}
	return &redisMarkerCache{redis: rdb, ttl: ttl}
}

func markerCacheKey(floorplanID string, page int, gen int64) string {
	return fmt.Sprintf("%s%s:%d:%d", markerCacheKeyPrefix, floorplanID, page, gen)
}

func markerGenKey(floorplanID string, page int) string {
	return fmt.Sprintf("%s%s:%d", markerGenKeyPrefix, floorplanID, page)
}

// Get returns the cached list of the current generation. gen is negative
// when the generation could not be read; Set ignores such a generation.
func (c *redisMarkerCache) Get(ctx context.Context, floorplanID string, page int) ([]annotation.Marker, int64, bool) {
	gen, err := c.redis.Get(ctx, markerGenKey(floorplanID, page)).Int64()
	if err == redis.Nil {
		gen, err = 0, nil
	}
	if err != nil {
		slog.Warn("marker cache generation read failed",
			slog.String("floorplan_id", floorplanID),
			slog.Int("page", page),
			slog.Any("error", err),
		)
		return nil, -1, false
	}

	data, err := c.redis.Get(ctx, markerCacheKey(floorplanID, page, gen)).Bytes()
	if err == redis.Nil {
		return nil, gen, false
	}
	if err != nil {
		slog.Warn("marker cache read failed",
			slog.String("floorplan_id", floorplanID),
			slog.Int("page", page),
			slog.Any("error", err),
		)
		return nil, gen, false
	}
	var markers []annotation.Marker
	if err := json.Unmarshal(data, &markers); err != nil {
		slog.Warn("marker cache entry corrupt",
			slog.String("floorplan_id", floorplanID),
			slog.Int("page", page),
			slog.Any("error", err),
		)
		return nil, gen, false
	}
	return markers, gen, true
}

// Set stores a list under gen. An empty list is cached as "[]".
func (c *redisMarkerCache) Set(ctx context.Context, floorplanID string, page int, gen int64, markers []annotation.Marker) {
	if gen < 0 {
		return
	}
	if markers == nil {
		markers = []annotation.Marker{}
	}
	data, err := json.Marshal(markers)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, markerCacheKey(floorplanID, page, gen), data, c.ttl).Err(); err != nil {
		slog.Warn("marker cache write failed",
			slog.String("floorplan_id", floorplanID),
			slog.Int("page", page),
			slog.Any("error", err),
		)
	}
}

// Invalidate starts a new generation for one page and drops the list of
// the previous one.
func (c *redisMarkerCache) Invalidate(ctx context.Context, floorplanID string, page int) {
	genKey := markerGenKey(floorplanID, page)
	var incr *redis.IntCmd
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, max(minGenTTL, 2*c.ttl))
		return nil
	})
	if err != nil {
		slog.Warn("marker cache invalidation failed",
			slog.String("floorplan_id", floorplanID),
			slog.Int("page", page),
			slog.Any("error", err),
		)
		return
	}
	if err := c.redis.Del(ctx, markerCacheKey(floorplanID, page, incr.Val()-1)).Err(); err != nil {
		slog.Debug("stale marker list not removed",
			slog.String("floorplan_id", floorplanID),
			slog.Int("page", page),
			slog.Any("error", err),
		)
	}
}

type noCache struct{}

func (noCache) Get(context.Context, string, int) ([]annotation.Marker, int64, bool) {
	return nil, -1, false
}

func (noCache) Set(context.Context, string, int, int64, []annotation.Marker) {}

func (noCache) Invalidate(context.Context, string, int) {}
