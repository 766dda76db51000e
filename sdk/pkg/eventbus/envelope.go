package eventbus

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/json"
)

// Envelope 统一消息包络
//
// Payload 是事件的完整扁平 JSON 文档，其余字段是它的元数据镜像，
// 传输层写入消息头（Kafka 同时写入 Key），供路由与过滤使用，不需要解析负载。
type Envelope struct {
	EventID       string          `json:"eventId"`
	AggregateID   string          `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	EventVersion  int64           `json:"eventVersion"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CausationID   string          `json:"causationId,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope 创建新的消息包络
func NewEnvelope(eventID, aggregateID, eventType string, eventVersion int64, payload []byte) *Envelope {
	return &Envelope{
		EventID:      eventID,
		AggregateID:  aggregateID,
		EventType:    eventType,
		EventVersion: eventVersion,
		Timestamp:    time.Now().UTC(),
		Payload:      json.RawMessage(payload),
	}
}

// NewEnvelopeWithAutoID 创建新的消息包络（EventID 使用 UUID v7）
func NewEnvelopeWithAutoID(aggregateID, eventType string, eventVersion int64, payload []byte) *Envelope {
	eventID, err := uuid.NewV7()
	if err != nil {
		eventID = uuid.New()
	}
	return NewEnvelope(eventID.String(), aggregateID, eventType, eventVersion, payload)
}

// Validate 校验包络字段
func (e *Envelope) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return errors.New("event_id is required")
	}
	if strings.TrimSpace(e.EventType) == "" {
		return errors.New("event_type is required")
	}
	if e.EventVersion <= 0 {
		return errors.New("event_version must be positive")
	}
	if len(e.Payload) == 0 {
		return errors.New("payload is required")
	}
	if err := validateAggregateID(e.AggregateID); err != nil {
		return fmt.Errorf("invalid aggregate_id: %w", err)
	}
	return nil
}

// Headers 传输层消息头
func (e *Envelope) Headers() map[string]string {
	h := map[string]string{
		HeaderEventID:      e.EventID,
		HeaderAggregateID:  e.AggregateID,
		HeaderEventType:    e.EventType,
		HeaderEventVersion: strconv.FormatInt(e.EventVersion, 10),
	}
	if e.CorrelationID != "" {
		h[HeaderCorrelationID] = e.CorrelationID
	}
	if e.CausationID != "" {
		h[HeaderCausationID] = e.CausationID
	}
	return h
}

// EnvelopeFromMessage 从消息头与负载还原包络
//
// 优先使用消息头；缺失的字段从扁平负载中读取（兼容不写消息头的生产者），
// 最后用 key 兜底聚合ID。
func EnvelopeFromMessage(headers map[string]string, key string, payload []byte) (*Envelope, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty message")
	}
	env := &Envelope{
		EventID:       headers[HeaderEventID],
		AggregateID:   headers[HeaderAggregateID],
		EventType:     headers[HeaderEventType],
		CorrelationID: headers[HeaderCorrelationID],
		CausationID:   headers[HeaderCausationID],
		Timestamp:     time.Now().UTC(),
		Payload:       json.RawMessage(payload),
	}
	if v := headers[HeaderEventVersion]; v != "" {
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s header %q: %w", HeaderEventVersion, v, err)
		}
		env.EventVersion = version
	}

	fill := func(dst *string, field string) {
		if *dst == "" {
			*dst = json.GetString(payload, field)
		}
	}
	fill(&env.EventID, "id")
	fill(&env.AggregateID, "aggregateId")
	fill(&env.EventType, "eventType")
	fill(&env.CorrelationID, "correlationId")
	fill(&env.CausationID, "causationId")
	if env.EventVersion == 0 {
		env.EventVersion = json.GetInt64(payload, "aggregateVersion")
	}
	if env.AggregateID == "" {
		env.AggregateID = key
	}

	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	return env, nil
}

// validateAggregateID 校验聚合ID格式
func validateAggregateID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("aggregate_id cannot be empty")
	}
	if len(id) > 256 {
		return errors.New("aggregate_id too long (max 256 characters)")
	}

	// 允许的字符：A-Z a-z 0-9 : _ - . /
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == ':' || r == '_' || r == '-' || r == '.' || r == '/':
		default:
			return fmt.Errorf("aggregate_id contains invalid character: %c", r)
		}
	}
	return nil
}
