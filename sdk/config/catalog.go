package config

import "time"

// CatalogConfig 商品目录配置
type CatalogConfig struct {
	CacheSize int           `mapstructure:"cacheSize"`
	CacheTTL  time.Duration `mapstructure:"cacheTTL"`
	// Products 启动时写入目录（无数据库时写入内存目录）
	Products []CatalogProduct `mapstructure:"products"`
}

// CatalogProduct 预置商品，Price 为最小货币单位
type CatalogProduct struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Category    string `mapstructure:"category"`
	Price       int64  `mapstructure:"price"`
	Inactive    bool   `mapstructure:"inactive"`
}

// SetDefaults 设置默认值
func (c *CatalogConfig) SetDefaults() {
	if c.CacheSize == 0 {
		c.CacheSize = 1024
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Minute
	}
}
