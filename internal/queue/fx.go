package queue

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bozorlab/marketpulse/internal/clock"
	"github.com/bozorlab/marketpulse/internal/config"
)

var Module = fx.Module("queue",
	fx.Provide(
		NewRedisClient,
		New,
	),
)

// NewRedisClient opens the shared Redis connection.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
			log.Info("redis connected", zap.String("addr", opts.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = ctx
			return client.Close()
		},
	})

	return client, nil
}

// RunScheduler wires the promotion loop into the fx lifecycle.
func RunScheduler(lc fx.Lifecycle, q *Queue, client *redis.Client, clk clock.Clock, log *zap.Logger, cfg config.Config) {
	scheduler := NewScheduler(q, client, clk, log, cfg.Worker.PollInterval)

	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			scheduler.Start(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = ctx
			cancel()
			scheduler.Stop()
			return nil
		},
	})
}
