package config

import "time"

// PaymentConfig 支付上下文配置
type PaymentConfig struct {
	Currency string        `mapstructure:"currency"`
	Method   string        `mapstructure:"method"`
	Gateway  GatewayConfig `mapstructure:"gateway"`
}

// GatewayConfig 模拟支付网关
type GatewayConfig struct {
	MaxAmount   int64         `mapstructure:"maxAmount"`   // 超过该金额（分）拒付，0 不限制
	FailureRate float64       `mapstructure:"failureRate"` // 0..1 随机拒付比例
	Latency     time.Duration `mapstructure:"latency"`
}

// SetDefaults 设置默认值
func (c *PaymentConfig) SetDefaults() {
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.Method == "" {
		c.Method = "credit_card"
	}
}
