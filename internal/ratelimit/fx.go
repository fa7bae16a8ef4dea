package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/scailup/creditledger/internal/clock"
	"github.com/scailup/creditledger/internal/config"
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
	fx.Provide(NewLimiter),
)

// NewRedisClient returns nil when no address is configured. The limiter
// and locker degrade to per-instance behavior in that case.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable, shared rate limiting degraded", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	log.Info("redis configured", zap.String("addr", addr))
	return client
}

type LimiterParams struct {
	fx.In

	Holder *config.EngineConfigHolder
	Clock  clock.Clock
	Redis  *redis.Client `optional:"true"`
	Log    *zap.Logger
}

func NewLimiter(p LimiterParams) Limiter {
	if p.Redis != nil {
		p.Log.Info("rate limiter backend", zap.String("backend", "redis"))
		return NewRedisWindow(p.Redis, p.Holder)
	}
	p.Log.Info("rate limiter backend", zap.String("backend", "memory"))
	return NewMemoryWindow(p.Holder, p.Clock)
}
