// Package runlock serializes environment bootstrap between pipeline runs that
// share a project, using a Redis key with a TTL or an in-process lock.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"startup-positioning-map/config"
)

var ErrLocked = errors.New("bootstrap lock is held by another run")

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

type Config struct {
	Key    string
	TTL    time.Duration
	Wait   time.Duration
	Poll   time.Duration
	Logger *zap.SugaredLogger
}

type RedisLocker struct {
	cfg    Config
	client client
	logger *zap.SugaredLogger

	newToken func() string
}

func NewRedisLocker(c client, cfg Config) *RedisLocker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 500 * time.Millisecond
	}
	return &RedisLocker{
		cfg:      cfg,
		client:   c,
		logger:   logger,
		newToken: uuid.NewString,
	}
}

// Acquire polls until the lock is free, Wait elapses or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := l.newToken()
	deadline := time.Now().Add(l.cfg.Wait)
	logged := false

	for {
		ok, err := l.client.SetNX(ctx, l.cfg.Key, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", l.cfg.Key, err)
		}
		if ok {
			l.logger.Infow("run_lock_acquired", "key", l.cfg.Key, "ttl", l.cfg.TTL.String())
			return l.releaseFunc(token), nil
		}

		if !time.Now().Before(deadline) {
			return nil, ErrLocked
		}
		if !logged {
			l.logger.Infow("run_lock_waiting", "key", l.cfg.Key, "wait", l.cfg.Wait.String())
			logged = true
		}

		t := time.NewTimer(l.cfg.Poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (l *RedisLocker) releaseFunc(token string) func(context.Context) error {
	return func(ctx context.Context) error {
		n, err := l.client.Eval(ctx, releaseScript, []string{l.cfg.Key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release %s: %w", l.cfg.Key, err)
		}
		if n == 0 {
			l.logger.Warnw("run_lock_expired_before_release", "key", l.cfg.Key)
			return nil
		}
		l.logger.Infow("run_lock_released", "key", l.cfg.Key)
		return nil
	}
}

// Local is used when no Redis is configured. It serializes the runs of one
// process, such as concurrent Inngest invocations in the server.
type Local struct {
	sem chan struct{}
}

func NewLocal() *Local {
	return &Local{sem: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is free or ctx is done.
func (l *Local) Acquire(ctx context.Context) (func(context.Context) error, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-l.sem })
		return nil
	}, nil
}

type NewLockerParams struct {
	fx.In

	Cfg    *config.Config
	Logger *zap.SugaredLogger
	Redis  *redis.Client `optional:"true"`
}

func NewLocker(p NewLockerParams) Locker {
	if p.Redis == nil {
		return NewLocal()
	}
	return NewRedisLocker(p.Redis, Config{
		Key:    p.Cfg.RunLock.Key,
		TTL:    p.Cfg.RunLock.TTL,
		Wait:   p.Cfg.RunLock.Wait,
		Logger: p.Logger,
	})
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*Local)(nil)
)
