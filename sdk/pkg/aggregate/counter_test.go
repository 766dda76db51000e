package aggregate

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventstore"
)

const counterType = "Counter"

const (
	typeOpened      event.Type = "CounterOpened"
	typeIncremented event.Type = "CounterIncremented"
)

type counterOpened struct {
	event.Metadata
	Owner string `json:"owner"`
}

type counterIncremented struct {
	event.Metadata
	By int `json:"by"`
}

var counterEvents = func() *event.Registry {
	r := event.NewRegistry()
	event.Register[counterOpened](r, typeOpened)
	event.Register[counterIncremented](r, typeIncremented)
	return r
}()

// counter 测试用聚合
type counter struct {
	Root
	Owner string `json:"owner"`
	Value int    `json:"value"`
	Ops   int    `json:"ops"`
}

func newCounter() *counter {
	c := &counter{}
	c.Init(counterType, "")
	return c
}

func (c *counter) Open(id, owner string) error {
	c.SetID(id)
	return c.Raise(c.Apply, &counterOpened{Metadata: event.New(typeOpened), Owner: owner})
}

func (c *counter) Increment(by int) error {
	if by <= 0 {
		return errs.Invariantf("increment must be positive, got %d", by)
	}
	return c.Raise(c.Apply, &counterIncremented{Metadata: event.New(typeIncremented), By: by})
}

func (c *counter) Apply(e event.Event) error {
	switch e := e.(type) {
	case *counterOpened:
		c.Owner = e.Owner
	case *counterIncremented:
		c.Value += e.By
		c.Ops++
	default:
		return errs.UnknownEventTypef("%T", e)
	}
	return nil
}

var counterDefinition = Definition[*counter]{
	AggregateType: counterType,
	New:           newCounter,
	Decode:        DecodeWith(counterEvents),
}

func newTestStore(t *testing.T) eventstore.EventStore {
	t.Helper()
	bus := eventbus.NewMemoryEventBus(config.MemoryConfig{WorkerCount: 4, QueueSize: 64}, "aggregate-test")
	store := eventstore.NewBusStore(bus, eventstore.BusStoreConfig{
		EventsTopic:    "counter-events",
		SnapshotsTopic: "aggregate-snapshots",
	})
	require.NoError(t, store.Connect(context.Background()))
	t.Cleanup(func() { _ = store.Disconnect(context.Background()) })
	return store
}

// spyStore 记录快照调用
type spyStore struct {
	eventstore.EventStore
	mu        sync.Mutex
	snapshots []int64
	failSnap  error
}

func (s *spyStore) CreateSnapshot(ctx context.Context, streamID, aggregateType string, state interface{}, version int64) error {
	s.mu.Lock()
	s.snapshots = append(s.snapshots, version)
	s.mu.Unlock()
	if s.failSnap != nil {
		return s.failSnap
	}
	return s.EventStore.CreateSnapshot(ctx, streamID, aggregateType, state, version)
}
