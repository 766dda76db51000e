package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v9"
)

// Locker 基于 redislock 的分布式锁
type Locker struct {
	prefix string
	client *redislock.Client
}

// NewLocker 创建分布式锁
func NewLocker(client redis.UniversalClient, prefix string) *Locker {
	return &Locker{prefix: prefix, client: redislock.New(client)}
}

// Do 获得锁后执行 fn；锁被其他实例持有时返回 false, nil
// nil Locker 直接执行
func (l *Locker) Do(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	if l == nil {
		return true, fn(ctx)
	}

	lock, err := l.client.Obtain(ctx, l.prefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() {
		_ = lock.Release(context.Background())
	}()

	return true, fn(ctx)
}
