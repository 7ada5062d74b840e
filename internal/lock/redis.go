package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-payouts/internal/model"
)

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// RedisLocker распределённая блокировка на SET NX PX для нескольких экземпляров сервиса.
type RedisLocker struct {
	rdb        redis.UniversalClient
	keyPrefix  string
	ttl        time.Duration
	wait       time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewRedisLocker создаёт блокировщик поверх клиента Redis.
func NewRedisLocker(rdb redis.UniversalClient, keyPrefix string, ttl, wait time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		rdb:        rdb,
		keyPrefix:  keyPrefix,
		ttl:        ttl,
		wait:       wait,
		retryDelay: 50 * time.Millisecond,
		logger:     logger,
	}
}

// Dial подключается к Redis по адресу и проверяет соединение.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Acquire пытается захватить ключ в течение wait.
func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := r.keyPrefix + "lock:" + key
	value := uuid.NewString()
	deadline := time.Now().Add(r.wait)

	for {
		ok, err := r.rdb.SetNX(ctx, fullKey, value, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s: %w", key, model.ErrLockHeld)
		}

		timer := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("lock %s: %w: %w", key, model.ErrLockHeld, ctx.Err())
		case <-timer.C:
		}
	}

	return func() {
		// контекст запроса может быть уже отменён
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := r.rdb.Eval(ctx, releaseScript, []string{fullKey}, value).Err(); err != nil {
			r.logger.Warn("release lock error", zap.Error(err), zap.String("key", fullKey))
		}
	}, nil
}
