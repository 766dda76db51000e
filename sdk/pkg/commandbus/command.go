// Package commandbus 单处理器命令分发与中间件链
package commandbus

import (
	"time"

	"github.com/google/uuid"
)

// Command 命令接口，具体命令嵌入 Metadata
type Command interface {
	CommandType() string
	Meta() *Metadata
}

// Keyed 命令的目标（聚合ID，必要时加上子键）参与幂等键
// 关联ID可由调用方指定，未实现 Keyed 的命令在同一关联ID下只执行一次
type Keyed interface {
	IdempotencyKey() string
}

// Metadata 命令元数据
type Metadata struct {
	CommandID     string    `json:"commandId"`
	CorrelationID string    `json:"correlationId"`
	CausationID   string    `json:"causationId,omitempty"`
	IssuedAt      time.Time `json:"issuedAt"`
}

// Meta 实现 Command
func (m *Metadata) Meta() *Metadata { return m }

// NewMetadata 关联ID为空时生成新的
func NewMetadata(correlationID, causationID string) Metadata {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return Metadata{
		CommandID:     uuid.NewString(),
		CorrelationID: correlationID,
		CausationID:   causationID,
		IssuedAt:      time.Now().UTC(),
	}
}
