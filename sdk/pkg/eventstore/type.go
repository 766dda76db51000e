// Package eventstore 追加式事件日志：乐观并发、快照、按类型与关联ID查询
package eventstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/json"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
)

// SnapshotEventType 快照包络的事件类型
const SnapshotEventType = "Snapshot"

// EventStore 事件存储接口
type EventStore interface {
	// Connect 连接底层存储并开始消费，失败返回 errs.ErrBrokerConnection
	Connect(ctx context.Context) error
	// Disconnect 停止消费并释放资源，可重复调用
	Disconnect(ctx context.Context) error

	// AppendEvents 以 expectedVersion 为前提追加事件，
	// 流当前版本不等于 expectedVersion 时返回 *errs.ConcurrencyConflictError，且不写入任何事件
	AppendEvents(ctx context.Context, streamID string, events []event.Event, expectedVersion int64) ([]StoredEvent, error)
	// GetEvents 返回版本大于 fromVersion 的事件，按版本升序
	GetEvents(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error)
	// GetEventsByType 扫描所有流，按发生时间排序，相同时间按到达顺序
	GetEventsByType(ctx context.Context, eventType event.Type) ([]StoredEvent, error)
	// GetEventsByCorrelationID 扫描所有流，排序规则同上
	GetEventsByCorrelationID(ctx context.Context, correlationID string) ([]StoredEvent, error)

	// CreateSnapshot 记录快照，仅当版本比已有快照更新时覆盖
	CreateSnapshot(ctx context.Context, streamID, aggregateType string, state interface{}, version int64) error
	// GetLatestSnapshot 没有快照时返回 nil, nil
	GetLatestSnapshot(ctx context.Context, streamID string) (*Snapshot, error)

	// StreamVersion 流当前版本，不存在为 0
	StreamVersion(ctx context.Context, streamID string) (int64, error)
	// ListStreams 某聚合类型的所有流，按首个事件的到达顺序
	ListStreams(ctx context.Context, aggregateType string) ([]string, error)
}

// StoredEvent 已持久化的事件
type StoredEvent struct {
	event.Metadata
	// Data 事件完整的扁平 JSON 文档
	Data json.RawMessage
	// Position 在本存储中的全局到达序号
	Position int64
}

// Snapshot 聚合状态快照
type Snapshot struct {
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	Version       int64           `json:"version"`
	TakenAt       time.Time       `json:"takenAt"`
	Data          json.RawMessage `json:"data"`
}

// Option 存储构造选项
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Collector
}

// WithLogger 指定 logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics 指定指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: logger.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// encode 为事件盖上流ID与版本号，并序列化为扁平文档
func encode(streamID string, events []event.Event, expectedVersion int64) ([]StoredEvent, error) {
	if strings.TrimSpace(streamID) == "" {
		return nil, fmt.Errorf("stream id is required")
	}
	out := make([]StoredEvent, 0, len(events))
	for i, e := range events {
		if e == nil {
			return nil, fmt.Errorf("event %d is nil", i)
		}
		m := e.Meta()
		m.AggregateID = streamID
		m.AggregateVersion = expectedVersion + int64(i) + 1
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("invalid event %s: %w", m.EventType, err)
		}
		data, err := event.Marshal(e)
		if err != nil {
			return nil, err
		}
		out = append(out, StoredEvent{Metadata: *m, Data: data})
	}
	return out, nil
}

// toEnvelope 事件转为总线包络，负载是扁平文档本身
func toEnvelope(se StoredEvent) *eventbus.Envelope {
	env := eventbus.NewEnvelope(se.EventID, se.AggregateID, string(se.EventType), se.AggregateVersion, se.Data)
	env.CorrelationID = se.CorrelationID
	env.CausationID = se.CausationID
	if !se.OccurredAt.IsZero() {
		env.Timestamp = se.OccurredAt
	}
	return env
}

// fromDocument 从扁平文档恢复存储事件
func fromDocument(data []byte) (StoredEvent, error) {
	var m event.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return StoredEvent{}, fmt.Errorf("failed to decode event metadata: %w", err)
	}
	if err := m.Validate(); err != nil {
		return StoredEvent{}, err
	}
	return StoredEvent{Metadata: m, Data: append(json.RawMessage(nil), data...)}, nil
}

func newSnapshot(streamID, aggregateType string, state interface{}, version int64) (*Snapshot, error) {
	if strings.TrimSpace(streamID) == "" {
		return nil, fmt.Errorf("stream id is required")
	}
	if version <= 0 {
		return nil, fmt.Errorf("snapshot version must be positive, got %d", version)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot state: %w", err)
	}
	return &Snapshot{
		AggregateID:   streamID,
		AggregateType: aggregateType,
		Version:       version,
		TakenAt:       time.Now().UTC(),
		Data:          data,
	}, nil
}
