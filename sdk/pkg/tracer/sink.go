package tracer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
)

// BusSink 通过事件总线发送，总线由调用方关闭
type BusSink struct {
	bus   eventbus.EventBus
	topic string
}

// NewBusSink 创建总线 sink
func NewBusSink(bus eventbus.EventBus, topic string) *BusSink {
	return &BusSink{bus: bus, topic: topic}
}

func (s *BusSink) Send(ctx context.Context, key string, data []byte) error {
	return s.bus.Publish(ctx, s.topic, data)
}

func (s *BusSink) Close() error { return nil }

// KafkaSink 独立的 kafka-go 生产者，与业务事件的连接互不影响
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink 创建 kafka sink
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           50 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			Async:                  true,
			AllowAutoTopicCreation: true,
		},
	}
}

func (s *KafkaSink) Send(ctx context.Context, key string, data []byte) error {
	return s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
