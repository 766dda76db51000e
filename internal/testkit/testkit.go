// Package testkit 上下文测试共用的内存总线、事件存储与命令总线
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventstore"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/idempotency"
)

// Bus 已连接的内存总线，测试结束时关闭
func Bus(t testing.TB) eventbus.EventBus {
	t.Helper()
	bus := eventbus.NewMemoryEventBus(config.MemoryConfig{WorkerCount: 4, QueueSize: 128}, "test")
	require.NoError(t, bus.Connect(context.Background()))
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

// Store 以 topic 为日志的事件存储
func Store(t testing.TB, bus eventbus.EventBus, topic string) *eventstore.BusStore {
	t.Helper()
	s := eventstore.NewBusStore(bus, eventstore.BusStoreConfig{
		EventsTopic:    topic,
		SnapshotsTopic: contracts.TopicSnapshots,
	}, eventstore.WithLogger(zap.NewNop()))
	require.NoError(t, s.Connect(context.Background()))
	return s
}

// CommandBus 带校验与幂等中间件的命令总线
func CommandBus(t testing.TB) *commandbus.Bus {
	t.Helper()
	store, err := idempotency.NewMemoryStore(1024)
	require.NoError(t, err)
	b := commandbus.New(zap.NewNop())
	b.Use(
		commandbus.Validation(validator.New()),
		commandbus.Idempotency(store, time.Hour, zap.NewNop()),
	)
	return b
}

// Eventually 等待条件成立
func Eventually(t testing.TB, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msg)
}

// Publish 以上游服务的身份发布一条已盖章的事件
//
// 未填写的聚合ID、版本与关联ID 分别取 aggregateID、1 与 correlationID。
func Publish(t testing.TB, bus eventbus.EventBus, topic, aggregateID, correlationID string, e event.Event) {
	t.Helper()
	m := e.Meta()
	if m.AggregateID == "" {
		m.AggregateID = aggregateID
	}
	if m.AggregateVersion == 0 {
		m.AggregateVersion = 1
	}
	if m.CorrelationID == "" {
		m.CorrelationID = correlationID
	}
	data, err := event.Marshal(e)
	require.NoError(t, err)
	env := eventbus.NewEnvelope(m.EventID, m.AggregateID, string(m.EventType), m.AggregateVersion, data)
	env.CorrelationID = m.CorrelationID
	env.CausationID = m.CausationID
	require.NoError(t, bus.PublishEnvelope(context.Background(), topic, env))
}
