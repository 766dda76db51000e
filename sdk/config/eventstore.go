package config

import "fmt"

// 事件存储实现
const (
	EventStoreBus = "bus" // 以消息总线 topic 为日志
	EventStoreSQL = "sql" // gorm 关系型日志
)

// EventStoreConfig 事件存储配置
type EventStoreConfig struct {
	Driver           string `mapstructure:"driver"`
	SnapshotInterval int    `mapstructure:"snapshotInterval"`
	// Relay SQL 日志是否经发件箱转发到总线
	Relay  bool         `mapstructure:"relay"`
	Outbox OutboxConfig `mapstructure:"outbox"`
}

// SetDefaults 设置默认值
func (c *EventStoreConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = EventStoreBus
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = 10
	}
	c.Outbox.SetDefaults()
}

// Validate 校验
func (c *EventStoreConfig) Validate() error {
	if c.Driver != EventStoreBus && c.Driver != EventStoreSQL {
		return fmt.Errorf("unsupported eventstore driver: %s", c.Driver)
	}
	if c.SnapshotInterval < 1 {
		return fmt.Errorf("snapshot interval must be positive, got %d", c.SnapshotInterval)
	}
	return nil
}
