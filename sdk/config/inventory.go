package config

import "time"

// InventoryConfig 库存上下文配置
type InventoryConfig struct {
	LowStockScan string        `mapstructure:"lowStockScan"` // cron 表达式，为空不启用
	ScanLockTTL  time.Duration `mapstructure:"scanLockTTL"`
}

// SetDefaults 设置默认值
func (c *InventoryConfig) SetDefaults() {
	if c.ScanLockTTL == 0 {
		c.ScanLockTTL = 30 * time.Second
	}
}
