package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/timberline-hq/timberline/internal/config"
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
	fx.Provide(NewResolveLimiter),
)

// NewRedisClient returns nil when no redis address is configured.
// Consumers treat a nil client as "feature disabled".
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
