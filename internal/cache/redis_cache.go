package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shorturl/internal/domain"
	"shorturl/pkg/logger"
)

// versionTTL bounds how long an invalidation marker outlives the entry
const versionTTL = time.Hour

// KEYS[1]: entry key, KEYS[2]: version key
// ARGV[1]: version observed before the load, ARGV[2]: payload, ARGV[3]: ttl ms
// The snapshot is written only if no invalidation happened during the load.
var setIfVersionScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current == ARGV[1] then
    redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
    return 1
end
return 0
`)

// snapshot is the stored form of an entry; it keeps fields hidden from API JSON
type snapshot struct {
	*domain.ShortEntry
	PasswordHash *string `json:"passwordHash,omitempty"`
}

func encodeSnapshot(e *domain.ShortEntry) ([]byte, error) {
	return json.Marshal(snapshot{ShortEntry: e, PasswordHash: e.PasswordHash})
}

func decodeSnapshot(raw []byte) (*domain.ShortEntry, error) {
	s := snapshot{ShortEntry: &domain.ShortEntry{}}
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	s.ShortEntry.PasswordHash = s.PasswordHash
	return s.ShortEntry, nil
}

// redisCache implements EntryCache using Redis so all instances share snapshots
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisClient creates a Redis client and verifies the connection
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10, // Connection pool size
		MinIdleConns: 5,  // Minimum idle connections
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewRedisCache creates a shared entry cache on an existing client
func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) EntryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisCache{client: client, ttl: ttl, logger: log}
}

// GetOrLoad implements EntryCache. Redis failures degrade to a direct load.
func (c *redisCache) GetOrLoad(ctx context.Context, code string, load Loader) (*domain.ShortEntry, error) {
	entryKey, versionKey := c.entryKey(code), c.versionKey(code)

	// GETEX refreshes the TTL on every hit (sliding expiration)
	raw, err := c.client.GetEx(ctx, entryKey, c.ttl).Bytes()
	switch {
	case err == nil:
		entry, decodeErr := decodeSnapshot(raw)
		if decodeErr == nil {
			return entry, nil
		}
		c.logger.Warnw("Discarding undecodable cache entry", "code", code, "error", decodeErr)
	case !errors.Is(err, redis.Nil):
		c.logger.Warnw("Redis cache read failed, loading from store", "code", code, "error", err)
		return load(ctx)
	}

	version, err := c.client.Get(ctx, versionKey).Result()
	if errors.Is(err, redis.Nil) {
		version = "0"
	} else if err != nil {
		c.logger.Warnw("Redis version read failed, loading from store", "code", code, "error", err)
		return load(ctx)
	}

	entry, err := load(ctx)
	if err != nil || entry == nil {
		return entry, err
	}

	payload, err := encodeSnapshot(entry)
	if err != nil {
		return entry, nil
	}
	if err := setIfVersionScript.Run(ctx, c.client,
		[]string{entryKey, versionKey}, version, payload, c.ttl.Milliseconds(),
	).Err(); err != nil {
		c.logger.Warnw("Failed to cache entry", "code", code, "error", err)
	}

	return entry, nil
}

// Invalidate implements EntryCache. The version bump stops in-flight loads
// on any instance from writing back an older snapshot.
func (c *redisCache) Invalidate(ctx context.Context, code string) error {
	versionKey := c.versionKey(code)

	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, versionKey)
	pipe.Expire(ctx, versionKey, versionTTL)
	pipe.Del(ctx, c.entryKey(code))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}

	return nil
}

// Close closes the Redis connection
func (c *redisCache) Close() error {
	return c.client.Close()
}

// entryKey adds a namespace prefix to avoid key collisions
func (c *redisCache) entryKey(code string) string {
	return fmt.Sprintf("shorturl:entry:%s", key(code))
}

func (c *redisCache) versionKey(code string) string {
	return fmt.Sprintf("shorturl:entry-ver:%s", key(code))
}
