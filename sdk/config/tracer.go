package config

// 追踪输出
const (
	TracerSinkBus   = "bus"
	TracerSinkKafka = "kafka"
)

// TracerConfig 关联追踪配置
type TracerConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Sink          string   `mapstructure:"sink"`
	Brokers       []string `mapstructure:"brokers"` // kafka sink 使用，为空时复用 eventBus.kafka.brokers
	RatePerSecond float64  `mapstructure:"ratePerSecond"`
	Burst         int      `mapstructure:"burst"`
}

// SetDefaults 设置默认值
func (c *TracerConfig) SetDefaults() {
	if c.Sink == "" {
		c.Sink = TracerSinkBus
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = 200
	}
	if c.Burst == 0 {
		c.Burst = 50
	}
}
