// Package outbox 事务性发件箱：事件与日志在同一事务中写入，由调度器转发到总线
package outbox

import (
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
)

// Status 发件箱记录状态
type Status string

const (
	// StatusPending 待转发
	StatusPending Status = "pending"
	// StatusPublished 已转发
	StatusPublished Status = "published"
	// StatusMaxRetry 超过最大重试次数，需要人工处理
	StatusMaxRetry Status = "max_retry"
)

// Payload 以字符串写入的 JSON 列
type Payload []byte

// Value 实现 driver.Valuer 接口
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return string(p), nil
}

// Scan 实现 sql.Scanner 接口
func (p *Payload) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append(Payload(nil), v...)
	case string:
		*p = Payload(v)
	default:
		return fmt.Errorf("Payload.Scan: unsupported type %T", value)
	}
	return nil
}

// Record 发件箱表，ID 自增即转发顺序
type Record struct {
	ID            int64      `gorm:"primaryKey;autoIncrement;comment:转发顺序"`
	EventID       string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_outbox_event_id;comment:事件ID"`
	Topic         string     `gorm:"type:varchar(128);not null;comment:目标主题"`
	AggregateID   string     `gorm:"type:varchar(128);not null;index:idx_outbox_aggregate_id;comment:聚合ID"`
	EventType     string     `gorm:"type:varchar(100);not null;comment:事件类型"`
	EventVersion  int64      `gorm:"not null;comment:聚合版本"`
	CorrelationID string     `gorm:"type:varchar(64);comment:关联ID"`
	CausationID   string     `gorm:"type:varchar(64);comment:因果ID"`
	OccurredAt    time.Time  `gorm:"not null;comment:发生时间"`
	Payload       Payload    `gorm:"type:text;not null;comment:事件文档"`
	Status        Status     `gorm:"type:varchar(20);not null;index:idx_outbox_status;comment:状态"`
	RetryCount    int        `gorm:"not null;default:0;comment:重试次数"`
	LastError     string     `gorm:"type:text;comment:最后一次错误"`
	CreatedAt     time.Time  `gorm:"not null;comment:创建时间"`
	PublishedAt   *time.Time `gorm:"index:idx_outbox_published_at;comment:转发时间"`
}

// TableName 指定表名
func (Record) TableName() string {
	return "event_outbox"
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// FromEnvelope 由总线包络生成待转发记录
func FromEnvelope(topic string, env *eventbus.Envelope) *Record {
	return &Record{
		EventID:       env.EventID,
		Topic:         topic,
		AggregateID:   env.AggregateID,
		EventType:     env.EventType,
		EventVersion:  env.EventVersion,
		CorrelationID: env.CorrelationID,
		CausationID:   env.CausationID,
		OccurredAt:    env.Timestamp,
		Payload:       Payload(env.Payload),
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

// Envelope 还原总线包络
func (r *Record) Envelope() *eventbus.Envelope {
	env := eventbus.NewEnvelope(r.EventID, r.AggregateID, r.EventType, r.EventVersion, r.Payload)
	env.CorrelationID = r.CorrelationID
	env.CausationID = r.CausationID
	if !r.OccurredAt.IsZero() {
		env.Timestamp = r.OccurredAt
	}
	return env
}
