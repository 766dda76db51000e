package config

// Redis Redis配置，Addr 为空表示不启用
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled 是否配置了 Redis
func (r *Redis) Enabled() bool {
	return r.Addr != ""
}
