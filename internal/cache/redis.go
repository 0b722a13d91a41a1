package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fortuna/courtcast/internal/metrics"
)

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache is the best-effort JSON cache in front of the relational
// store. Reads fail open: any Redis problem looks like a miss. Writes and
// invalidations are logged and swallowed.
type RedisCache struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisCache creates a new Redis cache connection and pings it.
func NewRedisCache(cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewFromClient(client), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		log:    log.With().Str("component", "cache").Logger(),
	}
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Get decodes the cached JSON for key into dst. It returns false on a
// miss and on every failure.
func (rc *RedisCache) Get(ctx context.Context, key string, dst interface{}) bool {
	start := time.Now()
	defer func() { metrics.RecordCacheOperation("get", time.Since(start).Seconds()) }()

	raw, err := rc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		metrics.RecordCacheMiss()
		return false
	}
	if err != nil {
		metrics.RecordCacheError("get")
		rc.log.Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		metrics.RecordCacheError("decode")
		rc.log.Warn().Err(err).Str("key", key).Msg("cache entry undecodable, treating as miss")
		return false
	}

	metrics.RecordCacheHit()
	return true
}

// Set stores v as JSON with the given TTL.
func (rc *RedisCache) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	start := time.Now()
	defer func() { metrics.RecordCacheOperation("set", time.Since(start).Seconds()) }()

	data, err := json.Marshal(v)
	if err != nil {
		metrics.RecordCacheError("encode")
		rc.log.Warn().Err(err).Str("key", key).Msg("cache value not encodable")
		return
	}

	if err := rc.client.Set(ctx, key, data, ttl).Err(); err != nil {
		metrics.RecordCacheError("set")
		rc.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Delete removes keys and returns how many existed.
func (rc *RedisCache) Delete(ctx context.Context, keys ...string) int {
	if len(keys) == 0 {
		return 0
	}
	n, err := rc.client.Del(ctx, keys...).Result()
	if err != nil {
		metrics.RecordCacheError("delete")
		rc.log.Warn().Err(err).Strs("keys", keys).Msg("cache delete failed")
		return 0
	}
	return int(n)
}

// DeletePattern removes every key matching a glob pattern. It walks the
// keyspace with SCAN so a large cache never blocks Redis.
func (rc *RedisCache) DeletePattern(ctx context.Context, pattern string) int {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := rc.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			metrics.RecordCacheError("scan")
			rc.log.Warn().Err(err).Str("pattern", pattern).Msg("cache scan failed")
			return deleted
		}
		if len(keys) > 0 {
			deleted += rc.Delete(ctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	rc.log.Debug().Str("pattern", pattern).Int("deleted", deleted).Msg("cache pattern invalidated")
	return deleted
}
