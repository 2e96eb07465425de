package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"vega/internal/types"
)

const (
	entitlementKeyPrefix = "vega:entitlement:"
	clearScanCount       = 500

	// Generation keys sit outside the entitlement prefix so Clear's SCAN
	// never removes them.
	generationKeyPrefix = "vega:entitlement-gen:"
	epochKey            = "vega:entitlement-epoch"

	// generationTTL must outlive any recompute holding a generation.
	generationTTL = 24 * time.Hour
)

// setIfCurrentScript stores the entry only while "<epoch>:<gen>" still
// matches ARGV[2].
//
// KEYS: entry, generation, epoch. ARGV: value, generation token, TTL ms.
const setIfCurrentScript = `
local current = (redis.call('GET', KEYS[3]) or '0') .. ':' .. (redis.call('GET', KEYS[2]) or '0')
if current ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`

// invalidateScript advances the user's generation and drops the entry.
//
// KEYS: entry, generation. ARGV: generation TTL ms.
const invalidateScript = `
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
redis.call('DEL', KEYS[1])
return 1
`

// RedisClient is the subset of the go-redis client the entitlement cache
// uses. *redis.Client satisfies it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// RedisEntitlementCache shares snapshots between every API instance, so an
// invalidation is visible everywhere at once.
type RedisEntitlementCache struct {
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisEntitlementCache creates a Redis-backed cache whose keys expire
// after ttl.
func NewRedisEntitlementCache(client RedisClient, ttl time.Duration, logger *slog.Logger) *RedisEntitlementCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisEntitlementCache{client: client, ttl: ttl, logger: logger}
}

func entitlementKey(userID string) string {
	return entitlementKeyPrefix + userID
}

func generationKey(userID string) string {
	return generationKeyPrefix + userID
}

// Get implements the entitlement cache. A corrupt entry is deleted and
// reported as a miss.
func (c *RedisEntitlementCache) Get(ctx context.Context, userID string) (*types.Entitlement, bool, error) {
	key := entitlementKey(userID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, types.NewAppError(types.ErrCodeUpstreamCacheUnavailable, "failed to read entitlement cache", err)
	}

	var e types.Entitlement
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.WarnContext(ctx, "dropping corrupt entitlement cache entry",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		_ = c.client.Del(ctx, key).Err()
		return nil, false, nil
	}
	return &e, true, nil
}

// Generation implements the entitlement cache. The token is
// "<epoch>:<generation>"; missing keys read as zero.
func (c *RedisEntitlementCache) Generation(ctx context.Context, userID string) (string, error) {
	vals, err := c.client.MGet(ctx, epochKey, generationKey(userID)).Result()
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamCacheUnavailable, "failed to read entitlement generation", err)
	}
	part := func(i int) string {
		if i < len(vals) {
			if v, ok := vals[i].(string); ok && v != "" {
				return v
			}
		}
		return "0"
	}
	return part(0) + ":" + part(1), nil
}

// Set implements the entitlement cache.
func (c *RedisEntitlementCache) Set(ctx context.Context, e *types.Entitlement, gen string) (bool, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("marshal entitlement: %w", err)
	}
	keys := []string{entitlementKey(e.UserID), generationKey(e.UserID), epochKey}
	stored, err := c.client.Eval(ctx, setIfCurrentScript, keys, string(data), gen, c.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, types.NewAppError(types.ErrCodeUpstreamCacheUnavailable, "failed to write entitlement cache", err)
	}
	return stored == 1, nil
}

// Delete implements the entitlement cache.
func (c *RedisEntitlementCache) Delete(ctx context.Context, userID string) error {
	keys := []string{entitlementKey(userID), generationKey(userID)}
	if err := c.client.Eval(ctx, invalidateScript, keys, generationTTL.Milliseconds()).Err(); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamCacheUnavailable, "failed to invalidate entitlement", err)
	}
	return nil
}

// Clear deletes every entitlement key. It walks the keyspace with SCAN so a
// large cache never blocks the server.
func (c *RedisEntitlementCache) Clear(ctx context.Context) error {
	// Advancing the epoch first rejects every recompute already in flight.
	if err := c.client.Incr(ctx, epochKey).Err(); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamCacheUnavailable, "failed to advance entitlement epoch", err)
	}

	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, entitlementKeyPrefix+"*", clearScanCount).Result()
		if err != nil {
			return types.NewAppError(types.ErrCodeUpstreamCacheUnavailable, "failed to scan entitlement cache", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return types.NewAppError(types.ErrCodeUpstreamCacheUnavailable, "failed to clear entitlement cache", err)
			}
			deleted += len(keys)
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	c.logger.InfoContext(ctx, "entitlement cache cleared", slog.Int("keys", deleted))
	return nil
}

// NewRedisClient parses url, connects and verifies the server answers PING.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
