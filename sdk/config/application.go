package config

// Application 应用程序配置
type Application struct {
	Mode         string `mapstructure:"mode" json:"mode"`
	Host         string `mapstructure:"host" json:"host"`
	Name         string `mapstructure:"name" json:"name"`
	Port         int    `mapstructure:"port" json:"port"`
	ReadTimeout  int    `mapstructure:"readtimeout" json:"readtimeout"`   // 秒
	WriteTimeout int    `mapstructure:"writetimeout" json:"writetimeout"` // 秒
}

// SetDefaults 设置默认值
func (a *Application) SetDefaults() {
	if a.Mode == "" {
		a.Mode = "dev"
	}
	if a.Host == "" {
		a.Host = "0.0.0.0"
	}
	if a.Port == 0 {
		a.Port = 3001
	}
	if a.ReadTimeout == 0 {
		a.ReadTimeout = 10
	}
	if a.WriteTimeout == 0 {
		a.WriteTimeout = 10
	}
}
