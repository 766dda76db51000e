package eventstore

import (
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/json"
)

// JSONDocument 以字符串写入的 JSON 列
// pgx 会把 []byte 当作 bytea 编码，string 才能正确写入 text/jsonb 列
type JSONDocument []byte

// Value 实现 driver.Valuer 接口
func (j JSONDocument) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return string(j), nil
}

// Scan 实现 sql.Scanner 接口
func (j *JSONDocument) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append(JSONDocument(nil), v...)
	case string:
		*j = JSONDocument(v)
	default:
		return fmt.Errorf("JSONDocument.Scan: unsupported type %T", value)
	}
	return nil
}

// JournalEntry 事件日志表
type JournalEntry struct {
	// Position 全局到达序号
	Position int64 `gorm:"primaryKey;autoIncrement;comment:到达序号"`

	EventID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_journal_event_id;comment:事件ID"`

	// StreamID + AggregateVersion 唯一，并发追加时由数据库兜底
	StreamID         string `gorm:"type:varchar(128);not null;uniqueIndex:idx_journal_stream_version,priority:1;comment:流ID"`
	AggregateVersion int64  `gorm:"not null;uniqueIndex:idx_journal_stream_version,priority:2;comment:聚合版本"`

	AggregateType string       `gorm:"type:varchar(100);not null;index:idx_journal_aggregate_type;comment:聚合类型"`
	EventType     string       `gorm:"type:varchar(100);not null;index:idx_journal_event_type;comment:事件类型"`
	CorrelationID string       `gorm:"type:varchar(64);index:idx_journal_correlation_id;comment:关联ID"`
	CausationID   string       `gorm:"type:varchar(64);comment:因果ID"`
	OccurredAt    time.Time    `gorm:"not null;index:idx_journal_occurred_at;comment:发生时间"`
	Data          JSONDocument `gorm:"type:text;not null;comment:事件文档"`
}

// TableName 指定表名
func (JournalEntry) TableName() string {
	return "event_journal"
}

// SnapshotRecord 快照表，每个流保留最新一份
type SnapshotRecord struct {
	StreamID      string       `gorm:"type:varchar(128);primaryKey;comment:流ID"`
	AggregateType string       `gorm:"type:varchar(100);not null;comment:聚合类型"`
	Version       int64        `gorm:"not null;comment:快照版本"`
	TakenAt       time.Time    `gorm:"not null;comment:快照时间"`
	Data          JSONDocument `gorm:"type:text;not null;comment:聚合状态"`
}

// TableName 指定表名
func (SnapshotRecord) TableName() string {
	return "event_snapshots"
}

// AutoMigrate 创建事件日志与快照表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&JournalEntry{}, &SnapshotRecord{})
}

func newJournalEntry(se StoredEvent) *JournalEntry {
	return &JournalEntry{
		EventID:          se.EventID,
		StreamID:         se.AggregateID,
		AggregateVersion: se.AggregateVersion,
		AggregateType:    se.AggregateType,
		EventType:        string(se.EventType),
		CorrelationID:    se.CorrelationID,
		CausationID:      se.CausationID,
		OccurredAt:       se.OccurredAt,
		Data:             JSONDocument(se.Data),
	}
}

// ToStoredEvent 转换为存储事件
func (m *JournalEntry) ToStoredEvent() StoredEvent {
	return StoredEvent{
		Metadata: event.Metadata{
			EventID:          m.EventID,
			EventType:        event.Type(m.EventType),
			AggregateID:      m.StreamID,
			AggregateType:    m.AggregateType,
			AggregateVersion: m.AggregateVersion,
			CorrelationID:    m.CorrelationID,
			CausationID:      m.CausationID,
			OccurredAt:       m.OccurredAt,
		},
		Data:     json.RawMessage(m.Data),
		Position: m.Position,
	}
}

func toStoredEvents(models []*JournalEntry) []StoredEvent {
	out := make([]StoredEvent, 0, len(models))
	for _, m := range models {
		out = append(out, m.ToStoredEvent())
	}
	return out
}

// ToSnapshot 转换为快照
func (m *SnapshotRecord) ToSnapshot() *Snapshot {
	return &Snapshot{
		AggregateID:   m.StreamID,
		AggregateType: m.AggregateType,
		Version:       m.Version,
		TakenAt:       m.TakenAt,
		Data:          json.RawMessage(m.Data),
	}
}
