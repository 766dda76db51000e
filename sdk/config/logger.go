package config

type Logger struct {
	Path            string // 日志文件路径
	Level           string // 日志级别
	Stdout          bool   // 是否输出到标准控制台
	MaxSize         int    // 每个日志文件最大多少MB
	ErrorMaxAge     int    // error日志文件保留天数
	InfoMaxAge      int    // info日志文件保留天数
	MaxBackups      int    // 日志文件保留个数
	GormLoggerLevel int    // 数据库日志打印级别（4：Info，3 Warn，2 Error，1 Silent）
}

// SetDefaults 设置默认值
func (l *Logger) SetDefaults() {
	if l.Path == "" {
		l.Path = "temp/logs"
	}
	if l.Level == "" {
		l.Level = "info"
	}
	if l.MaxSize == 0 {
		l.MaxSize = 50
	}
	if l.ErrorMaxAge == 0 {
		l.ErrorMaxAge = 14
	}
	if l.InfoMaxAge == 0 {
		l.InfoMaxAge = 3
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = 20
	}
	if l.GormLoggerLevel == 0 {
		l.GormLoggerLevel = 2
	}
}
