package config

// Database 关系库配置，SQL 事件日志、幂等表与商品目录共用
type Database struct {
	Driver          string   `mapstructure:"driver"` // sqlite, mysql, postgres
	Source          string   `mapstructure:"source"`
	ConnMaxIdleTime int      `mapstructure:"connMaxIdleTime"` // 秒
	ConnMaxLifeTime int      `mapstructure:"connMaxLifeTime"` // 秒
	MaxIdleConns    int      `mapstructure:"maxIdleConns"`
	MaxOpenConns    int      `mapstructure:"maxOpenConns"`
	Replicas        []string `mapstructure:"replicas"` // 只读副本，经 dbresolver 路由查询
}

// Enabled 是否配置了数据库
func (d *Database) Enabled() bool {
	return d.Source != ""
}
