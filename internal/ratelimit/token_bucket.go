package ratelimit

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
)

const tokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])

if tokens == nil then
  tokens = burst
  ts = now
end

local elapsed = now - ts
if elapsed > 0 then
  tokens = math.min(burst, tokens + elapsed * rate)
  ts = now
end

local allowed = 0
if tokens >= requested then
  tokens = tokens - requested
  allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "ts", ts)
redis.call("EXPIRE", key, math.ceil(burst / rate) * 2)

return {allowed, tostring(tokens)}
`

// TokenBucket is a redis-backed token bucket shared across instances.
// Rate is tokens per second, burst the bucket capacity.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (b *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (bool, error) {
	if b == nil || b.client == nil {
		return false, errors.New("rate limit client not configured")
	}
	if key == "" {
		return false, errors.New("rate limit key is empty")
	}
	if rate <= 0 || burst <= 0 {
		return false, errors.New("rate and burst must be positive")
	}

	now := float64(nowUnixMicro()) / 1e6
	res, err := b.script.Run(ctx, b.client, []string{key}, rate, burst, now, 1).Result()
	if err != nil {
		return false, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 1 {
		return false, errors.New("unexpected rate limit script reply")
	}
	allowed, ok := vals[0].(int64)
	if !ok {
		return false, errors.New("unexpected rate limit script reply")
	}
	return allowed == 1, nil
}
