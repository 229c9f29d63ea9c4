package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Extend-only mark: keep whichever window reaches further into the future.
// A shorter window from a lax outbox must never shorten one set by a
// stricter outbox, and the compare-and-set has to be atomic across workers.
const markLuaScript = `
local ttl = redis.call('PTTL', KEYS[1])
local window = tonumber(ARGV[1])
if ttl < window then
	redis.call('SET', KEYS[1], 1, 'PX', window)
end
return 1
`

// RedisLedger stores cooldown windows as TTL'd Redis keys, so the window
// survives process restarts and is shared across scheduler replicas.
type RedisLedger struct {
	client     *redis.Client
	prefix     string
	markScript *redis.Script
}

// NewRedisLedger creates a ledger backed by the given Redis client.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{
		client:     client,
		prefix:     "cooldown:",
		markScript: redis.NewScript(markLuaScript),
	}
}

// NewRedisLedgerFromURL connects to Redis and verifies the connection.
func NewRedisLedgerFromURL(redisURL string) (*RedisLedger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisLedger(client), nil
}

func (r *RedisLedger) key(tenantID, recipient string) string {
	return r.prefix + tenantID + ":" + normalize(recipient)
}

// InCooldown implements Ledger. The key's TTL is the window: existence
// means the recipient is still cooling down.
func (r *RedisLedger) InCooldown(ctx context.Context, tenantID, recipient string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(tenantID, recipient)).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown check: %w", err)
	}
	return n > 0, nil
}

// MarkSent implements Ledger via the extend-only Lua script.
func (r *RedisLedger) MarkSent(ctx context.Context, tenantID, recipient string, window time.Duration) error {
	if window <= 0 {
		return nil
	}
	key := r.key(tenantID, recipient)
	if err := r.markScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("cooldown mark: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (r *RedisLedger) Close() error {
	return r.client.Close()
}
