package eventstore

import (
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
)

// cache 日志的进程内读模型
//
// 每个流保存从版本 1 开始连续的事件；乱序到达的事件暂存在 pending，补齐后并入。
// reserved 是已知或已预留的最高版本，乐观并发检查以它为准。
type cache struct {
	mu       sync.Mutex
	streams  map[string]*streamState
	order    []string
	position *atomic.Int64
}

type streamState struct {
	aggregateType string
	events        []StoredEvent
	pending       map[int64]StoredEvent
	reserved      int64
	snapshot      *Snapshot
}

func newCache() *cache {
	return &cache{
		streams:  make(map[string]*streamState),
		position: atomic.NewInt64(0),
	}
}

// stream 调用方持有 mu
func (c *cache) stream(id string) *streamState {
	s, ok := c.streams[id]
	if !ok {
		s = &streamState{pending: make(map[int64]StoredEvent)}
		c.streams[id] = s
		c.order = append(c.order, id)
	}
	return s
}

// reserve 检查并预留版本区间 (expected, expected+n]，返回当前版本
func (c *cache) reserve(streamID string, expected int64, n int) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stream(streamID)
	if s.reserved != expected {
		return s.reserved, false
	}
	s.reserved = expected + int64(n)
	return expected, true
}

// release 发布失败时回滚预留，只有预留未被推进时才生效
func (c *cache) release(streamID string, reservedTo, rollbackTo int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stream(streamID)
	if s.reserved != reservedTo {
		return false
	}
	s.reserved = rollbackTo
	return true
}

// ingest 并入事件，(流, 版本) 已存在时返回 false
func (c *cache) ingest(se StoredEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stream(se.AggregateID)
	if s.aggregateType == "" {
		s.aggregateType = se.AggregateType
	}
	v := se.AggregateVersion
	if v > s.reserved {
		s.reserved = v
	}
	if v <= int64(len(s.events)) {
		return false
	}
	if _, dup := s.pending[v]; dup {
		return false
	}
	if v != int64(len(s.events))+1 {
		s.pending[v] = se
		return true
	}

	c.appendLocked(s, se)
	for {
		next, ok := s.pending[int64(len(s.events))+1]
		if !ok {
			break
		}
		delete(s.pending, next.AggregateVersion)
		c.appendLocked(s, next)
	}
	return true
}

func (c *cache) appendLocked(s *streamState, se StoredEvent) {
	se.Position = c.position.Inc()
	s.events = append(s.events, se)
}

func (c *cache) version(streamID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.streams[streamID]; ok {
		return s.reserved
	}
	return 0
}

func (c *cache) events(streamID string, fromVersion int64) []StoredEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[streamID]
	if !ok {
		return nil
	}
	if fromVersion < 0 {
		fromVersion = 0
	}
	if fromVersion >= int64(len(s.events)) {
		return nil
	}
	out := make([]StoredEvent, len(s.events)-int(fromVersion))
	copy(out, s.events[fromVersion:])
	return out
}

// scan 过滤所有流的事件，按发生时间和到达顺序排序
func (c *cache) scan(match func(se *StoredEvent) bool) []StoredEvent {
	c.mu.Lock()
	var out []StoredEvent
	for _, id := range c.order {
		for i := range c.streams[id].events {
			if se := &c.streams[id].events[i]; match(se) {
				out = append(out, *se)
			}
		}
	}
	c.mu.Unlock()

	sortEvents(out)
	return out
}

func (c *cache) streamsOf(aggregateType string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for _, id := range c.order {
		s := c.streams[id]
		if len(s.events) > 0 && s.aggregateType == aggregateType {
			ids = append(ids, id)
		}
	}
	return ids
}

// putSnapshot 仅当更新时覆盖
func (c *cache) putSnapshot(snap *Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stream(snap.AggregateID)
	if s.snapshot != nil && s.snapshot.Version >= snap.Version {
		return false
	}
	cp := *snap
	s.snapshot = &cp
	if s.aggregateType == "" {
		s.aggregateType = snap.AggregateType
	}
	return true
}

func (c *cache) snapshot(streamID string) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[streamID]
	if !ok || s.snapshot == nil {
		return nil
	}
	cp := *s.snapshot
	return &cp
}

func sortEvents(events []StoredEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].OccurredAt.Before(events[j].OccurredAt)
		}
		return events[i].Position < events[j].Position
	})
}

func byType(t event.Type) func(se *StoredEvent) bool {
	return func(se *StoredEvent) bool { return se.EventType == t }
}

func byCorrelation(id string) func(se *StoredEvent) bool {
	return func(se *StoredEvent) bool { return se.CorrelationID == id }
}
