// Package idempotency 命令去重键的占用与释放
package idempotency

import (
	"context"
	"strings"
	"time"
)

// Store 幂等键存储
type Store interface {
	// Claim 占用 key，已被占用且未过期时返回 false
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release 释放 key，处理失败后允许重投递重试
	Release(ctx context.Context, key string) error
}

// Key 由关联ID、命令类型与区分符拼成幂等键
func Key(correlationID, commandType, discriminator string) string {
	parts := []string{correlationID, commandType}
	if discriminator != "" {
		parts = append(parts, discriminator)
	}
	return strings.Join(parts, ":")
}
