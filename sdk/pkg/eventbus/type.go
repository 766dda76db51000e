package eventbus

import (
	"context"
	"errors"
)

// ErrEventBusClosed 总线已关闭
var ErrEventBusClosed = errors.New("eventbus is closed")

// MessageHandler 消息处理器函数类型
type MessageHandler func(ctx context.Context, message []byte) error

// EnvelopeHandler Envelope消息处理器
type EnvelopeHandler func(ctx context.Context, envelope *Envelope) error

// EventBus 技术层事件总线接口（基础设施层使用）
//
// 订阅在 ctx 取消或 Close 之前一直有效；同一聚合ID的消息在一个订阅内按序处理。
type EventBus interface {
	// Connect 建立连接，失败时按指数退避重试，用尽后返回 errs.ErrBrokerConnection
	Connect(ctx context.Context) error

	// Publish 发布原始消息
	Publish(ctx context.Context, topic string, message []byte) error

	// PublishEnvelope 发布事件，Kafka key / 路由键为 AggregateID，元数据镜像到消息头
	PublishEnvelope(ctx context.Context, topic string, envelope *Envelope) error

	// Subscribe 订阅原始消息
	Subscribe(ctx context.Context, topic string, handler MessageHandler, opts ...SubscribeOption) error

	// SubscribeEnvelope 订阅事件，按聚合ID路由到 Keyed-Worker 池
	SubscribeEnvelope(ctx context.Context, topic string, handler EnvelopeHandler, opts ...SubscribeOption) error

	// HealthCheck 健康检查
	HealthCheck(ctx context.Context) error

	// Close 关闭连接，可重复调用
	Close() error
}

// SubscribeOptions 订阅选项
type SubscribeOptions struct {
	// Group 消费组：同组订阅者分摊消息，不同组各自收到全部消息
	Group string
	// FromBeginning 新消费组从最早的消息开始消费
	FromBeginning bool
}

// SubscribeOption 订阅选项函数
type SubscribeOption func(*SubscribeOptions)

// WithGroup 指定消费组
func WithGroup(group string) SubscribeOption {
	return func(o *SubscribeOptions) {
		o.Group = group
	}
}

// FromBeginning 从最早的消息开始消费
func FromBeginning() SubscribeOption {
	return func(o *SubscribeOptions) {
		o.FromBeginning = true
	}
}

func buildSubscribeOptions(defaultGroup string, opts []SubscribeOption) SubscribeOptions {
	o := SubscribeOptions{Group: defaultGroup}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
