package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/json"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
)

// BusStoreConfig 总线事件存储配置
type BusStoreConfig struct {
	// EventsTopic 本服务的事件 topic，即事件日志
	EventsTopic string
	// SnapshotsTopic 快照 topic，所有服务共用
	SnapshotsTopic string
	// Group 读模型的消费组，为空时生成进程唯一的组名
	Group string
	// AggregateTypes 只缓存这些聚合类型的快照，为空时全部缓存
	AggregateTypes []string
}

// BusStore 以消息总线 topic 为日志的事件存储
//
// 进程内 cache 是从 topic 重建的读模型：Connect 时以唯一消费组从头消费，
// 本进程追加的事件写穿到 cache，消费回来时按 (流, 版本) 去重。
type BusStore struct {
	bus     eventbus.EventBus
	cfg     BusStoreConfig
	logger  *zap.Logger
	metrics *metrics.Collector

	cache      *cache
	snapTypes  map[string]struct{}
	connected  *atomic.Bool
	cancel     context.CancelFunc
	disconnect sync.Once
}

// NewBusStore 创建总线事件存储
func NewBusStore(bus eventbus.EventBus, cfg BusStoreConfig, opts ...Option) *BusStore {
	o := buildOptions(opts)
	if cfg.Group == "" {
		cfg.Group = fmt.Sprintf("%s-store-%s", cfg.EventsTopic, uuid.NewString())
	}
	var types map[string]struct{}
	if len(cfg.AggregateTypes) > 0 {
		types = make(map[string]struct{}, len(cfg.AggregateTypes))
		for _, t := range cfg.AggregateTypes {
			types[t] = struct{}{}
		}
	}
	return &BusStore{
		bus:       bus,
		cfg:       cfg,
		logger:    o.logger.Named("eventstore.bus"),
		metrics:   o.metrics,
		cache:     newCache(),
		snapTypes: types,
		connected: atomic.NewBool(false),
	}
}

// Connect 连接总线并从头订阅事件与快照 topic
func (s *BusStore) Connect(ctx context.Context) error {
	if s.connected.Load() {
		return nil
	}
	if s.cfg.EventsTopic == "" || s.cfg.SnapshotsTopic == "" {
		return fmt.Errorf("events topic and snapshots topic are required")
	}
	if err := s.bus.Connect(ctx); err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	opts := []eventbus.SubscribeOption{eventbus.WithGroup(s.cfg.Group), eventbus.FromBeginning()}
	if err := s.bus.SubscribeEnvelope(subCtx, s.cfg.EventsTopic, s.onEvent, opts...); err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe %s: %w", s.cfg.EventsTopic, err)
	}
	if err := s.bus.SubscribeEnvelope(subCtx, s.cfg.SnapshotsTopic, s.onSnapshot, opts...); err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe %s: %w", s.cfg.SnapshotsTopic, err)
	}

	s.cancel = cancel
	s.connected.Store(true)
	s.logger.Info("event store connected",
		zap.String("eventsTopic", s.cfg.EventsTopic),
		zap.String("snapshotsTopic", s.cfg.SnapshotsTopic),
		zap.String("group", s.cfg.Group))
	return nil
}

// Disconnect 停止消费并关闭总线
func (s *BusStore) Disconnect(ctx context.Context) error {
	var err error
	s.disconnect.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.connected.Store(false)
		err = s.bus.Close()
	})
	return err
}

// AppendEvents 追加事件
//
// 版本检查与预留在一个临界区内完成，发布期间不持锁；
// 发布失败时把预留回滚到最后一个已发布的版本。
func (s *BusStore) AppendEvents(ctx context.Context, streamID string, events []event.Event, expectedVersion int64) ([]StoredEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	stored, err := encode(streamID, events, expectedVersion)
	if err != nil {
		return nil, err
	}

	n := len(stored)
	if actual, ok := s.cache.reserve(streamID, expectedVersion, n); !ok {
		s.metrics.AppendConflict()
		return nil, &errs.ConcurrencyConflictError{StreamID: streamID, Expected: expectedVersion, Actual: actual}
	}

	// 逐条发布，中途失败时已发布的前缀留在日志中，版本从前缀之后继续
	published := 0
	for _, se := range stored {
		if err = s.bus.PublishEnvelope(ctx, s.cfg.EventsTopic, toEnvelope(se)); err != nil {
			break
		}
		published++
	}

	for i := 0; i < published; i++ {
		s.cache.ingest(stored[i])
	}

	if err != nil {
		s.cache.release(streamID, expectedVersion+int64(n), expectedVersion+int64(published))
		s.logger.Error("failed to publish events",
			zap.String("streamID", streamID),
			zap.Int("published", published),
			zap.Int("total", n),
			zap.Error(err))
		return nil, fmt.Errorf("failed to publish events for stream %s: %w", streamID, err)
	}

	s.metrics.EventsAppended(stored[0].AggregateType, n)
	// 读模型尚未追平更早的版本时，返回不带到达序号的原始事件
	if got := s.cache.events(streamID, expectedVersion); len(got) >= n {
		return got[:n], nil
	}
	return stored, nil
}

// GetEvents 版本大于 fromVersion 的事件
func (s *BusStore) GetEvents(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error) {
	return s.cache.events(streamID, fromVersion), nil
}

// GetEventsByType 按类型扫描
func (s *BusStore) GetEventsByType(ctx context.Context, eventType event.Type) ([]StoredEvent, error) {
	return s.cache.scan(byType(eventType)), nil
}

// GetEventsByCorrelationID 按关联ID扫描
func (s *BusStore) GetEventsByCorrelationID(ctx context.Context, correlationID string) ([]StoredEvent, error) {
	return s.cache.scan(byCorrelation(correlationID)), nil
}

// CreateSnapshot 发布快照并写入本地
func (s *BusStore) CreateSnapshot(ctx context.Context, streamID, aggregateType string, state interface{}, version int64) error {
	snap, err := newSnapshot(streamID, aggregateType, state, version)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	env := eventbus.NewEnvelopeWithAutoID(streamID, SnapshotEventType, version, payload)
	if err := s.bus.PublishEnvelope(ctx, s.cfg.SnapshotsTopic, env); err != nil {
		return fmt.Errorf("failed to publish snapshot for stream %s: %w", streamID, err)
	}
	if s.cache.putSnapshot(snap) {
		s.metrics.SnapshotTaken(aggregateType)
	}
	return nil
}

// GetLatestSnapshot 最新快照
func (s *BusStore) GetLatestSnapshot(ctx context.Context, streamID string) (*Snapshot, error) {
	return s.cache.snapshot(streamID), nil
}

// StreamVersion 流当前版本
func (s *BusStore) StreamVersion(ctx context.Context, streamID string) (int64, error) {
	return s.cache.version(streamID), nil
}

// ListStreams 某聚合类型的流
func (s *BusStore) ListStreams(ctx context.Context, aggregateType string) ([]string, error) {
	return s.cache.streamsOf(aggregateType), nil
}

// onEvent 消费事件 topic，无法解析的消息记录后跳过
func (s *BusStore) onEvent(ctx context.Context, env *eventbus.Envelope) error {
	se, err := fromDocument(env.Payload)
	if err != nil {
		s.logger.Warn("skipping undecodable event",
			zap.String("eventID", env.EventID),
			zap.String("eventType", env.EventType),
			zap.Error(err))
		return nil
	}
	if s.cache.ingest(se) {
		s.logger.Debug("event cached",
			zap.String("streamID", se.AggregateID),
			zap.Int64("version", se.AggregateVersion))
	}
	return nil
}

func (s *BusStore) onSnapshot(ctx context.Context, env *eventbus.Envelope) error {
	var snap Snapshot
	if err := json.Unmarshal(env.Payload, &snap); err != nil || snap.AggregateID == "" || snap.Version <= 0 {
		if err == nil {
			err = errors.New("incomplete snapshot")
		}
		s.logger.Warn("skipping undecodable snapshot", zap.String("eventID", env.EventID), zap.Error(err))
		return nil
	}
	if s.snapTypes != nil {
		if _, ok := s.snapTypes[snap.AggregateType]; !ok {
			return nil
		}
	}
	s.cache.putSnapshot(&snap)
	return nil
}

var _ EventStore = (*BusStore)(nil)
