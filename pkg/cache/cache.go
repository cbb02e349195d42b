// Package cache implements the namespaced, TTL'd key-value layer described
// in the spec: metadata (1h), verse (1h), daily-verse (24h), and config (1w)
// namespaces, with a cache-through fallback to the metadata store on miss.
// Grounded on the Redis-then-fallback pattern in the teacher's
// alert.Deduplicator.Check, generalised from a single dedup key to four
// namespaces with distinct TTLs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	metadataTTL   = time.Hour
	verseTTL      = time.Hour
	dailyVerseTTL = 24 * time.Hour
	configTTL     = 7 * 24 * time.Hour
)

// MetadataSource is the authoritative fallback for getMetadata on a cache
// miss. pkg/metastore.Store implements this.
type MetadataSource interface {
	GetImageMetadata(ctx context.Context, imageID string) (json.RawMessage, error)
}

// Cache wraps a Redis client with the namespacing and TTL policy the rest of
// the service relies on. A cache failure never surfaces to callers — per
// spec §7 it degrades to the authoritative store and logs a warning.
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
	source MetadataSource
}

// New creates a Cache. source may be nil until the metadata store is wired;
// SetSource attaches it once available (breaks an import cycle at
// construction time between cache and metastore).
func New(rdb *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{rdb: rdb, logger: logger}
}

// SetSource attaches the authoritative metadata source used by GetMetadata
// on a cache miss.
func (c *Cache) SetSource(source MetadataSource) {
	c.source = source
}

func metadataKey(imageID string) string { return "metadata:" + imageID }

// normalizeVerseRef implements the spec's reference.trim().toLowerCase()
// normalisation so casing and padding are transparent to verse caching.
func normalizeVerseRef(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}

func verseKey(ref string) string { return "verse:" + normalizeVerseRef(ref) }

const dailyVerseKey = "daily-verse:current"

func configKey(name string) string { return "config:" + name }

// ctxWithTimeout bounds every Redis call at 1 second per spec §5.
func ctxWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Second)
}

// GetMetadata is cache-through: on a hit it returns the cached value; on a
// miss it falls back to the authoritative MetadataSource, hydrates the
// cache, and returns the freshly loaded value. A cache error degrades
// silently to the fallback.
func (c *Cache) GetMetadata(ctx context.Context, imageID string, dst any) error {
	cctx, cancel := ctxWithTimeout(ctx)
	defer cancel()

	val, err := c.rdb.Get(cctx, metadataKey(imageID)).Result()
	if err == nil {
		return json.Unmarshal([]byte(val), dst)
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache get failed, falling back to metadata store", "error", err, "image_id", imageID)
	}

	if c.source == nil {
		return fmt.Errorf("cache miss and no metadata source configured")
	}

	raw, err := c.source.GetImageMetadata(ctx, imageID)
	if err != nil {
		return err
	}

	c.SetMetadata(ctx, imageID, raw)

	return json.Unmarshal(raw, dst)
}

// SetMetadata stores v (any JSON-marshalable value, or json.RawMessage) at
// the metadata namespace with a 1h TTL.
func (c *Cache) SetMetadata(ctx context.Context, imageID string, v any) {
	c.set(ctx, metadataKey(imageID), v, metadataTTL)
}

// InvalidateImage evicts the metadata cache entry for imageID.
func (c *Cache) InvalidateImage(ctx context.Context, imageID string) {
	cctx, cancel := ctxWithTimeout(ctx)
	defer cancel()
	if err := c.rdb.Del(cctx, metadataKey(imageID)).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", "error", err, "image_id", imageID)
	}
}

// GetVerse looks up a cached verse by reference (normalised).
func (c *Cache) GetVerse(ctx context.Context, ref string, dst any) (bool, error) {
	cctx, cancel := ctxWithTimeout(ctx)
	defer cancel()

	val, err := c.rdb.Get(cctx, verseKey(ref)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get verse failed", "error", err, "reference", ref)
		}
		return false, nil
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetVerse stores a verse at the normalised reference key with a 1h TTL.
func (c *Cache) SetVerse(ctx context.Context, ref string, v any) {
	c.set(ctx, verseKey(ref), v, verseTTL)
}

// SetDailyVerse records the current daily-verse imageId with a 24h TTL.
func (c *Cache) SetDailyVerse(ctx context.Context, imageID string) {
	cctx, cancel := ctxWithTimeout(ctx)
	defer cancel()
	if err := c.rdb.Set(cctx, dailyVerseKey, imageID, dailyVerseTTL).Err(); err != nil {
		c.logger.Warn("cache set daily verse failed", "error", err)
	}
}

// GetDailyVerse returns the current daily-verse imageId, if cached.
func (c *Cache) GetDailyVerse(ctx context.Context) (string, bool) {
	cctx, cancel := ctxWithTimeout(ctx)
	defer cancel()
	val, err := c.rdb.Get(cctx, dailyVerseKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get daily verse failed", "error", err)
		}
		return "", false
	}
	return val, true
}

// GetConfig loads a config namespace value (e.g. "moderation-blocklist")
// into dst. Returns an error on miss or failure so callers can decide
// whether to keep a compiled-in default.
func (c *Cache) GetConfig(ctx context.Context, name string, dst any) error {
	cctx, cancel := ctxWithTimeout(ctx)
	defer cancel()
	val, err := c.rdb.Get(cctx, configKey(name)).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dst)
}

// SetConfig stores a config namespace value with a 1w TTL.
func (c *Cache) SetConfig(ctx context.Context, name string, v any) {
	c.set(ctx, configKey(name), v, configTTL)
}

// ClearConfigCache removes a single config key.
func (c *Cache) ClearConfigCache(ctx context.Context, name string) {
	cctx, cancel := ctxWithTimeout(ctx)
	defer cancel()
	if err := c.rdb.Del(cctx, configKey(name)).Err(); err != nil {
		c.logger.Warn("cache clear config failed", "error", err, "name", name)
	}
}

func (c *Cache) set(ctx context.Context, key string, v any, ttl time.Duration) {
	var payload []byte
	switch val := v.(type) {
	case json.RawMessage:
		payload = val
	case []byte:
		payload = val
	default:
		b, err := json.Marshal(v)
		if err != nil {
			c.logger.Warn("cache marshal failed", "error", err, "key", key)
			return
		}
		payload = b
	}

	cctx, cancel := ctxWithTimeout(ctx)
	defer cancel()
	if err := c.rdb.Set(cctx, key, payload, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", "error", err, "key", key)
	}
}
