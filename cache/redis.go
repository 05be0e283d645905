package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"startup-positioning-map/config"
)

type NewRedisParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    *config.Config
	Logger *zap.SugaredLogger
}

// NewRedis returns nil when REDIS_HOST is unset; the run lock then falls back
// to a process-local no-op.
func NewRedis(p NewRedisParams) (*redis.Client, error) {
	cfg := p.Cfg
	if strings.TrimSpace(cfg.RedisHost) == "" {
		p.Logger.Infow("redis_disabled", "reason", "missing REDIS_HOST")
		return nil, nil
	}

	client := redis.NewClient(Options(cfg))
	addr := client.Options().Addr

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				_ = client.Close()
				return fmt.Errorf("redis ping failed: %w", err)
			}
			p.Logger.Infow("redis_connected", "addr", addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := client.Close(); err != nil {
				p.Logger.Warnw("redis_close_failed", "err", err)
			}
			return nil
		},
	})

	return client, nil
}

func Options(cfg *config.Config) *redis.Options {
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Username: strings.TrimSpace(cfg.RedisUser),
		Password: cfg.RedisPassword,
	}
	if strings.EqualFold(strings.TrimSpace(cfg.RedisScheme), "rediss") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}
