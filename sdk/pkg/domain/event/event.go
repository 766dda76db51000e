package event

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type 事件类型判别字段（线上文档的 eventType）
type Type string

// Event 领域事件接口
// 具体事件嵌入 Metadata（值嵌入），*T 通过提升的 Meta 方法实现该接口
type Event interface {
	Meta() *Metadata
}

// Metadata 所有领域事件共有的元数据，与业务字段一起平铺在同一个 JSON 文档中
type Metadata struct {
	EventID          string    `json:"id"`
	EventType        Type      `json:"eventType"`
	AggregateID      string    `json:"aggregateId"`
	AggregateType    string    `json:"aggregateType"`
	AggregateVersion int64     `json:"aggregateVersion"`
	CorrelationID    string    `json:"correlationId"`
	CausationID      string    `json:"causationId,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// Meta 返回元数据指针，聚合根通过它盖章版本与关联ID
func (m *Metadata) Meta() *Metadata { return m }

// New 创建事件元数据：UUIDv7 事件ID、类型与发生时间
// 聚合ID、类型、版本、关联ID 在聚合根 Raise 时填写
func New(eventType Type) Metadata {
	return Metadata{
		EventID:    NewID(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
	}
}

// NewID UUIDv7，按时间排序
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Validate 校验已盖章的事件元数据
func (m *Metadata) Validate() error {
	switch {
	case strings.TrimSpace(m.EventID) == "":
		return errors.New("event id is required")
	case m.EventType == "":
		return errors.New("event type is required")
	case strings.TrimSpace(m.AggregateID) == "":
		return errors.New("aggregate id is required")
	case m.AggregateVersion <= 0:
		return errors.New("aggregate version must be positive")
	}
	return nil
}
