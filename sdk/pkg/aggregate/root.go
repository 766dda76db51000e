// Package aggregate 事件溯源聚合根与通用仓储
package aggregate

import (
	"time"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
)

// Aggregate 聚合接口
//
// 聚合嵌入 Root，状态放在可导出字段中（快照直接序列化聚合本身），
// Apply 只修改状态，不做校验；未知事件返回 errs.ErrUnknownEventType。
type Aggregate interface {
	AggregateRoot() *Root
	Apply(e event.Event) error
}

// Root 聚合根：标识、版本与未提交事件
type Root struct {
	id            string
	aggregateType string
	version       int64
	changes       []event.Event
	correlationID string
	causationID   string
}

// Init 聚合工厂调用，设置聚合类型与标识
func (r *Root) Init(aggregateType, id string) {
	r.aggregateType = aggregateType
	r.id = id
}

// AggregateRoot 实现 Aggregate
func (r *Root) AggregateRoot() *Root { return r }

func (r *Root) ID() string            { return r.id }
func (r *Root) AggregateType() string { return r.aggregateType }

// SetID 创建聚合时设置标识
func (r *Root) SetID(id string) { r.id = id }

// Version 包含未提交事件在内的版本
func (r *Root) Version() int64 { return r.version }

// ExpectedVersion 加载时观察到的流长度
func (r *Root) ExpectedVersion() int64 { return r.version - int64(len(r.changes)) }

// Uncommitted 未提交事件
func (r *Root) Uncommitted() []event.Event {
	out := make([]event.Event, len(r.changes))
	copy(out, r.changes)
	return out
}

// ClearUncommitted 保存成功后清空
func (r *Root) ClearUncommitted() { r.changes = nil }

// Correlate 设置后续事件的关联ID与因果ID，通常取自触发的命令或上游事件
func (r *Root) Correlate(correlationID, causationID string) {
	r.correlationID = correlationID
	r.causationID = causationID
}

// CorrelationID 当前关联ID
func (r *Root) CorrelationID() string { return r.correlationID }

// Raise 盖章、应用并记录事件，apply 失败时不记录
func (r *Root) Raise(apply func(event.Event) error, e event.Event) error {
	m := e.Meta()
	if m.EventID == "" {
		m.EventID = event.NewID()
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = time.Now().UTC()
	}
	m.AggregateID = r.id
	m.AggregateType = r.aggregateType
	m.AggregateVersion = r.version + 1
	if m.CorrelationID == "" {
		m.CorrelationID = r.correlationID
	}
	if m.CausationID == "" {
		m.CausationID = r.causationID
	}

	if err := apply(e); err != nil {
		return err
	}
	r.version = m.AggregateVersion
	r.changes = append(r.changes, e)
	return nil
}

// restore 从快照或历史重建时设置标识与版本
func (r *Root) restore(id string, version int64) {
	r.id = id
	r.version = version
	r.changes = nil
}
