package cache

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/HamedShams/sprint-lens/internal/config"
    "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog"
)

// Cache is the Redis-backed result cache. Keys are board + result kind + day,
// so a board analyzed twice on the same day reuses the morning's computation.
type Cache struct {
    rdb *redis.Client
    ttl time.Duration
    log zerolog.Logger
}

func New(cfg config.Config, log zerolog.Logger) *Cache {
    rdb := redis.NewClient(&redis.Options{
        Addr:     cfg.RedisAddr,
        Password: cfg.RedisPassword,
        DB:       cfg.RedisDB,
    })
    return &Cache{rdb: rdb, ttl: cfg.CacheTTL, log: log}
}

func (c *Cache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *Cache) Close() error { return c.rdb.Close() }

// Key builds the cache key for a board, result kind, and day.
func Key(boardID int64, kind string, day time.Time) string {
    return fmt.Sprintf("board:%d:%s:%s", boardID, kind, day.Format("2006-01-02"))
}

// Get unmarshals a cached result into out. Returns false on miss; decode
// failures count as misses so a stale schema degrades to recompute.
func (c *Cache) Get(ctx context.Context, key string, out any) bool {
    b, err := c.rdb.Get(ctx, key).Bytes()
    if err != nil {
        if err != redis.Nil { c.log.Warn().Err(err).Str("key", key).Msg("cache get failed") }
        return false
    }
    if err := json.Unmarshal(b, out); err != nil {
        c.log.Warn().Err(err).Str("key", key).Msg("cache decode failed, treating as miss")
        return false
    }
    return true
}

// Set stores a result with the configured TTL. Failures are logged, never
// propagated: the cache is an optimization, not a dependency.
func (c *Cache) Set(ctx context.Context, key string, v any) {
    b, err := json.Marshal(v)
    if err != nil { c.log.Warn().Err(err).Str("key", key).Msg("cache marshal failed"); return }
    if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
        c.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
    }
}
