package eventstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/outbox"
)

// SQLStore 基于 gorm 的持久化事件日志
//
// 版本检查与写入在同一事务中，(stream_id, aggregate_version) 唯一索引兜底并发写入。
// 配置了发件箱时，事件在同一事务中写入 event_outbox，由 outbox.Scheduler 转发到事件 topic。
type SQLStore struct {
	db      *gorm.DB
	logger  *zap.Logger
	metrics *metrics.Collector

	outboxTopic string
}

// NewSQLStore 创建 SQL 事件存储，db 需开启 TranslateError
func NewSQLStore(db *gorm.DB, opts ...Option) *SQLStore {
	o := buildOptions(opts)
	return &SQLStore{
		db:      db,
		logger:  o.logger.Named("eventstore.sql"),
		metrics: o.metrics,
	}
}

// WithOutbox 追加的事件同时写入发件箱，目标为 eventsTopic
func (s *SQLStore) WithOutbox(eventsTopic string) *SQLStore {
	s.outboxTopic = eventsTopic
	return s
}

// Connect 检查数据库连接并建表
func (s *SQLStore) Connect(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := AutoMigrate(s.db.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to migrate event journal: %w", err)
	}
	if s.outboxTopic != "" {
		if err := outbox.AutoMigrate(s.db.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to migrate event outbox: %w", err)
		}
	}
	return nil
}

// Disconnect 数据库连接由调用方管理
func (s *SQLStore) Disconnect(context.Context) error {
	return nil
}

// AppendEvents 追加事件
func (s *SQLStore) AppendEvents(ctx context.Context, streamID string, events []event.Event, expectedVersion int64) ([]StoredEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	stored, err := encode(streamID, events, expectedVersion)
	if err != nil {
		return nil, err
	}

	models := make([]*JournalEntry, 0, len(stored))
	for _, se := range stored {
		models = append(models, newJournalEntry(se))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := streamVersion(tx, streamID)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return &errs.ConcurrencyConflictError{StreamID: streamID, Expected: expectedVersion, Actual: current}
		}
		if err := tx.Create(&models).Error; err != nil {
			return err
		}
		return s.enqueue(tx, stored)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		actual, _ := s.StreamVersion(ctx, streamID)
		err = &errs.ConcurrencyConflictError{StreamID: streamID, Expected: expectedVersion, Actual: actual}
	}
	if err != nil {
		if errors.Is(err, errs.ErrConcurrencyConflict) {
			s.metrics.AppendConflict()
			return nil, err
		}
		return nil, fmt.Errorf("failed to append events to stream %s: %w", streamID, err)
	}

	out := toStoredEvents(models)
	s.metrics.EventsAppended(out[0].AggregateType, len(out))
	return out, nil
}

// enqueue 与日志同一事务写入发件箱
func (s *SQLStore) enqueue(tx *gorm.DB, events []StoredEvent) error {
	if s.outboxTopic == "" {
		return nil
	}
	records := make([]*outbox.Record, 0, len(events))
	for _, se := range events {
		records = append(records, outbox.FromEnvelope(s.outboxTopic, toEnvelope(se)))
	}
	return outbox.Save(tx, records...)
}

// GetEvents 版本大于 fromVersion 的事件
func (s *SQLStore) GetEvents(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error) {
	var models []*JournalEntry
	err := s.db.WithContext(ctx).
		Where("stream_id = ? AND aggregate_version > ?", streamID, fromVersion).
		Order("aggregate_version ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toStoredEvents(models), nil
}

// GetEventsByType 按类型查询
func (s *SQLStore) GetEventsByType(ctx context.Context, eventType event.Type) ([]StoredEvent, error) {
	return s.scan(ctx, "event_type = ?", string(eventType))
}

// GetEventsByCorrelationID 按关联ID查询
func (s *SQLStore) GetEventsByCorrelationID(ctx context.Context, correlationID string) ([]StoredEvent, error) {
	return s.scan(ctx, "correlation_id = ?", correlationID)
}

func (s *SQLStore) scan(ctx context.Context, query string, arg interface{}) ([]StoredEvent, error) {
	var models []*JournalEntry
	err := s.db.WithContext(ctx).
		Where(query, arg).
		Order("occurred_at ASC").
		Order("position ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toStoredEvents(models), nil
}

// CreateSnapshot 仅当版本比已有快照新时写入
func (s *SQLStore) CreateSnapshot(ctx context.Context, streamID, aggregateType string, state interface{}, version int64) error {
	snap, err := newSnapshot(streamID, aggregateType, state, version)
	if err != nil {
		return err
	}
	saved := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing SnapshotRecord
		err := tx.Where("stream_id = ?", streamID).Take(&existing).Error
		switch {
		case err == nil && existing.Version >= version:
			return nil
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		saved = true
		return tx.Save(&SnapshotRecord{
			StreamID:      snap.AggregateID,
			AggregateType: snap.AggregateType,
			Version:       snap.Version,
			TakenAt:       snap.TakenAt,
			Data:          JSONDocument(snap.Data),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot for stream %s: %w", streamID, err)
	}
	if saved {
		s.metrics.SnapshotTaken(aggregateType)
	}
	return nil
}

// GetLatestSnapshot 没有快照返回 nil, nil
func (s *SQLStore) GetLatestSnapshot(ctx context.Context, streamID string) (*Snapshot, error) {
	var m SnapshotRecord
	err := s.db.WithContext(ctx).Where("stream_id = ?", streamID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.ToSnapshot(), nil
}

// StreamVersion 流当前版本
func (s *SQLStore) StreamVersion(ctx context.Context, streamID string) (int64, error) {
	return streamVersion(s.db.WithContext(ctx), streamID)
}

// ListStreams 按首个事件的到达顺序
func (s *SQLStore) ListStreams(ctx context.Context, aggregateType string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&JournalEntry{}).
		Select("stream_id").
		Where("aggregate_type = ?", aggregateType).
		Group("stream_id").
		Order("MIN(position) ASC").
		Pluck("stream_id", &ids).Error
	return ids, err
}

func streamVersion(db *gorm.DB, streamID string) (int64, error) {
	var version int64
	err := db.Model(&JournalEntry{}).
		Select("COALESCE(MAX(aggregate_version), 0)").
		Where("stream_id = ?", streamID).
		Scan(&version).Error
	return version, err
}

var _ EventStore = (*SQLStore)(nil)
