package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/retgrow/billing/pkg/config"
)

// NewClient returns nil when redis.addr is empty; callers fall back to in-process behavior.
func NewClient(lc fx.Lifecycle, l *zap.SugaredLogger, cfg *cfgpkg.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		l.Infow("redis disabled")
		return nil, nil
	}
	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := cli.Ping(pingCtx).Err(); err != nil {
				return err
			}
			l.Infow("connected to redis", "addr", cfg.Redis.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			l.Infow("closing redis client")
			return cli.Close()
		},
	})
	return cli, nil
}

var Module = fx.Options(
	fx.Provide(NewClient),
)
