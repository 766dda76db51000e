package config

import (
	"fmt"
	"time"
)

// 幂等存储后端
const (
	IdempotencyMemory = "memory"
	IdempotencyRedis  = "redis"
	IdempotencySQL    = "sql"
)

// IdempotencyConfig 命令幂等配置
type IdempotencyConfig struct {
	Enabled *bool         `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Size    int           `mapstructure:"size"` // memory 后端 LRU 容量
}

// IsEnabled 未配置时默认启用
func (c *IdempotencyConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SetDefaults 设置默认值
func (c *IdempotencyConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = IdempotencyMemory
	}
	if c.TTL == 0 {
		c.TTL = 24 * time.Hour
	}
	if c.Size == 0 {
		c.Size = 100000
	}
}

// Validate 校验，依赖的后端必须已配置
func (c *IdempotencyConfig) Validate(root *Config) error {
	if !c.IsEnabled() {
		return nil
	}
	switch c.Backend {
	case IdempotencyMemory:
	case IdempotencyRedis:
		if !root.Redis.Enabled() {
			return fmt.Errorf("redis addr is required for redis idempotency backend")
		}
	case IdempotencySQL:
		if !root.Database.Enabled() {
			return fmt.Errorf("database source is required for sql idempotency backend")
		}
	default:
		return fmt.Errorf("unsupported idempotency backend: %s", c.Backend)
	}
	return nil
}
