package config

// SagaConfig 服务间编排配置
type SagaConfig struct {
	ConsumerGroup string      `mapstructure:"consumerGroup"` // 为空时取 <application.name>-group
	Topics        TopicConfig `mapstructure:"topics"`
}

// TopicConfig 各上下文发布的 topic
type TopicConfig struct {
	Orders    string `mapstructure:"orders"`
	Payments  string `mapstructure:"payments"`
	Inventory string `mapstructure:"inventory"`
	Snapshots string `mapstructure:"snapshots"`
	Traces    string `mapstructure:"traces"`
}

// SetDefaults 设置默认值
func (c *SagaConfig) SetDefaults(serviceName string) {
	if c.ConsumerGroup == "" && serviceName != "" {
		c.ConsumerGroup = serviceName + "-group"
	}
	if c.Topics.Orders == "" {
		c.Topics.Orders = "orders-events"
	}
	if c.Topics.Payments == "" {
		c.Topics.Payments = "payments-events"
	}
	if c.Topics.Inventory == "" {
		c.Topics.Inventory = "domain-events"
	}
	if c.Topics.Snapshots == "" {
		c.Topics.Snapshots = "aggregate-snapshots"
	}
	if c.Topics.Traces == "" {
		c.Topics.Traces = "trace-events"
	}
}
