package eventbus

import (
	"fmt"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
)

// NewEventBus 按配置创建事件总线实例，连接在 Connect 时建立
func NewEventBus(cfg *config.EventBusConfig, opts ...Option) (EventBus, error) {
	if cfg == nil {
		return nil, fmt.Errorf("eventbus config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid eventbus config: %w", err)
	}

	switch cfg.Type {
	case config.EventBusKafka:
		return NewKafkaEventBus(cfg, opts...), nil
	case config.EventBusNATS:
		return NewNATSEventBus(cfg, opts...), nil
	case config.EventBusMemory:
		return NewMemoryEventBus(cfg.Memory, cfg.ServiceName, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported eventbus type: %s", cfg.Type)
	}
}
