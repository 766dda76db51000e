package config

import "time"

// OutboxConfig SQL 事件日志的发件箱转发
type OutboxConfig struct {
	PollInterval    time.Duration `mapstructure:"pollInterval"`
	BatchSize       int           `mapstructure:"batchSize"`
	MaxRetries      int           `mapstructure:"maxRetries"`      // 超过后标记 max_retry，不再转发
	Retention       time.Duration `mapstructure:"retention"`       // 已转发记录保留时长
	CleanupInterval time.Duration `mapstructure:"cleanupInterval"` // 0 不清理
}

// SetDefaults 设置默认值
func (c *OutboxConfig) SetDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 10
	}
	if c.Retention == 0 {
		c.Retention = 24 * time.Hour
	}
}
