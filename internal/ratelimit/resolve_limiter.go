package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/timberline-hq/timberline/internal/config"
)

func nowUnixMicro() int64 {
	return time.Now().UnixMicro()
}

// ResolveLimiter throttles the public invitation resolve endpoint.
// A nil limiter allows everything, so callers stay nil-safe when
// redis is not configured.
type ResolveLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewResolveLimiter(cfg config.Config, client *redis.Client) *ResolveLimiter {
	if client == nil {
		return nil
	}
	if cfg.ResolveRatePerSecond <= 0 || cfg.ResolveBurst <= 0 {
		return nil
	}
	return &ResolveLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.ResolveRatePerSecond,
		burst:  cfg.ResolveBurst,
	}
}

func (l *ResolveLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *ResolveLimiter) AllowIP(ctx context.Context, ip string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf("invitation:resolve:ip:%s", ip), l.rate, l.burst)
}

func (l *ResolveLimiter) AllowToken(ctx context.Context, tokenHash string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf("invitation:resolve:token:%s", tokenHash), l.rate, l.burst)
}
