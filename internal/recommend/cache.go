package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"

	"github.com/oggyb/scene-match/internal/cache"
)

const keyPrefix = "rec:"

// Entry is one cached recommendation list.
// Depth is how many items were requested when the entry was generated; an
// entry holding fewer items than Depth covers the whole candidate pool.
type Entry struct {
	UserID      uint64    `json:"user_id"`
	Scene       string    `json:"scene"`
	Items       []Item    `json:"items"`
	Depth       int       `json:"depth"`
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Covers reports whether the entry can answer a request for n items.
func (e *Entry) Covers(n int) bool {
	return n <= e.Depth || len(e.Items) < e.Depth
}

// Cache stores recommendation lists in Redis keyed by (user, scene).
//
// Expiry is decided on read against the injected clock, so tests control
// staleness without sleeping. The Redis TTL (list TTL + retention) only
// guards against keys nobody reads or cleans up.
type Cache struct {
	redis     *cache.RedisCache
	clock     clockwork.Clock
	ttl       time.Duration
	sceneTTL  map[string]time.Duration
	retention time.Duration
}

// NewCache builds a cache. sceneTTL overrides ttl per scene.
func NewCache(rc *cache.RedisCache, clock clockwork.Clock, ttl time.Duration, sceneTTL map[string]time.Duration, retention time.Duration) *Cache {
	return &Cache{redis: rc, clock: clock, ttl: ttl, sceneTTL: sceneTTL, retention: retention}
}

// Key is the Redis key of a (user, scene) entry.
func Key(userID uint64, scene string) string {
	return fmt.Sprintf("%s%s:%d", keyPrefix, scene, userID)
}

// TTLFor returns the freshness window of scene.
func (c *Cache) TTLFor(scene string) time.Duration {
	if d, ok := c.sceneTTL[scene]; ok && d > 0 {
		return d
	}
	return c.ttl
}

// Get returns the entry if present and not expired.
func (c *Cache) Get(ctx context.Context, userID uint64, scene string) (*Entry, bool, error) {
	var e Entry
	found, err := c.redis.GetJSON(ctx, Key(userID, scene), &e)
	if err != nil || !found {
		return nil, false, err
	}
	if !c.clock.Now().Before(e.ExpiresAt) {
		return nil, false, nil
	}
	return &e, true, nil
}

// Put replaces the entry wholesale and stamps its expiry.
func (c *Cache) Put(ctx context.Context, e *Entry) error {
	ttl := c.TTLFor(e.Scene)
	e.ExpiresAt = e.GeneratedAt.Add(ttl)
	return c.redis.SetJSON(ctx, Key(e.UserID, e.Scene), e, ttl+c.retention)
}

// Invalidate drops the entry of one (user, scene).
func (c *Cache) Invalidate(ctx context.Context, userID uint64, scene string) error {
	return c.redis.Del(ctx, Key(userID, scene))
}

// InvalidateScene drops every entry of scene.
func (c *Cache) InvalidateScene(ctx context.Context, scene string) (int64, error) {
	return c.redis.DeleteByPattern(ctx, keyPrefix+scene+":*")
}

// PurgeOlderThan deletes entries generated before now-retention, plus any
// entry that no longer decodes.
func (c *Cache) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := c.clock.Now().Add(-retention)
	var purged int64

	err := c.redis.ScanKeys(ctx, keyPrefix+"*", func(keys []string) error {
		vals, err := c.redis.Client.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		var stale []string
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue // vanished between SCAN and MGET
			}
			var e Entry
			if err := json.Unmarshal([]byte(raw), &e); err != nil || e.GeneratedAt.Before(cutoff) {
				stale = append(stale, keys[i])
			}
		}
		if len(stale) == 0 {
			return nil
		}
		n, err := c.redis.Client.Del(ctx, stale...).Result()
		purged += n
		return err
	})
	return purged, err
}
