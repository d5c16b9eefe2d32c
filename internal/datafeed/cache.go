package datafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionrun/internal/domain"
)

const snapshotKeyPrefix = "optionrun:snapshot:"

// SnapshotCache stores the latest market snapshot in Redis so restarts and
// sibling processes can pick up the most recent view without waiting for
// the feed.
type SnapshotCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewSnapshotCache wraps a redis client. ttl bounds staleness; zero means
// no expiry.
func NewSnapshotCache(client redis.Cmdable, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(day time.Time) string {
	return snapshotKeyPrefix + day.UTC().Format("2006-01-02")
}

// Put stores the snapshot under its trading-day key.
func (c *SnapshotCache) Put(ctx context.Context, snap *domain.MarketSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey(snap.Timestamp), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}
	return nil
}

// Get returns the cached snapshot for the given day. found is false on a
// clean miss.
func (c *SnapshotCache) Get(ctx context.Context, day time.Time) (*domain.MarketSnapshot, bool, error) {
	payload, err := c.client.Get(ctx, snapshotKey(day)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch cached snapshot: %w", err)
	}
	var snap domain.MarketSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, false, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return &snap, true, nil
}

// CachedSource decorates a Source: every served snapshot is written back
// to the cache, and cache write failures never fail the read path.
type CachedSource struct {
	inner Source
	cache *SnapshotCache
}

// NewCachedSource wraps inner with write-through caching.
func NewCachedSource(inner Source, cache *SnapshotCache) *CachedSource {
	return &CachedSource{inner: inner, cache: cache}
}

func (c *CachedSource) Snapshot(ctx context.Context) (*domain.MarketSnapshot, error) {
	snap, err := c.inner.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if cerr := c.cache.Put(ctx, snap); cerr != nil {
		log.Warn().Err(cerr).Msg("Snapshot cache write failed")
	}
	return snap, nil
}
