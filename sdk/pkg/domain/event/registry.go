package event

import (
	"fmt"
	"sort"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/json"
)

// Decoder 把扁平 JSON 文档解码为具体事件
type Decoder func(data []byte) (Event, error)

// Registry 事件类型到解码器的映射
type Registry struct {
	decoders map[Type]Decoder
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[Type]Decoder)}
}

// Register 注册事件类型 t 对应的结构体 T
//
//	event.Register[OrderCreated](r, TypeOrderCreated)
func Register[T any, PT interface {
	*T
	Event
}](r *Registry, t Type) {
	r.decoders[t] = func(data []byte) (Event, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", t, err)
		}
		return PT(&v), nil
	}
}

// Decode 读取 eventType 判别字段并解码，未注册的类型返回 errs.ErrUnknownEventType
func (r *Registry) Decode(data []byte) (Event, error) {
	t := TypeOf(data)
	dec, ok := r.decoders[t]
	if !ok {
		return nil, errs.UnknownEventTypef("%q", t)
	}
	return dec(data)
}

// Knows 是否注册了该类型
func (r *Registry) Knows(t Type) bool {
	_, ok := r.decoders[t]
	return ok
}

// Types 已注册的类型（排序后）
func (r *Registry) Types() []Type {
	out := make([]Type, 0, len(r.decoders))
	for t := range r.decoders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TypeOf 读取文档的 eventType 字段
func TypeOf(data []byte) Type {
	return Type(json.GetString(data, "eventType"))
}

// Marshal 序列化事件为扁平 JSON 文档
func Marshal(e Event) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("event is nil")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal domain event: %w", err)
	}
	return data, nil
}
