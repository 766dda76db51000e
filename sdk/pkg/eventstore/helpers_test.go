package eventstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
)

const (
	typeIncremented event.Type = "CounterIncremented"
	typeReset       event.Type = "CounterReset"
)

type counterIncremented struct {
	event.Metadata
	By int `json:"by"`
}

type counterReset struct {
	event.Metadata
}

func incremented(correlationID string, by int) *counterIncremented {
	e := &counterIncremented{Metadata: event.New(typeIncremented), By: by}
	e.AggregateType = "Counter"
	e.CorrelationID = correlationID
	return e
}

func reset(correlationID string) *counterReset {
	e := &counterReset{Metadata: event.New(typeReset)}
	e.AggregateType = "Counter"
	e.CorrelationID = correlationID
	return e
}

func events(es ...event.Event) []event.Event { return es }

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()
	bus := eventbus.NewMemoryEventBus(config.MemoryConfig{WorkerCount: 4, QueueSize: 64}, "eventstore-test")
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func newTestBusStore(t *testing.T, bus eventbus.EventBus) *BusStore {
	t.Helper()
	s := NewBusStore(bus, BusStoreConfig{EventsTopic: "counter-events", SnapshotsTopic: "aggregate-snapshots"})
	require.NoError(t, s.Connect(context.Background()))
	return s
}

// flakyBus 第 failAt 次 PublishEnvelope 起返回错误
type flakyBus struct {
	eventbus.EventBus
	mu     sync.Mutex
	calls  int
	failAt int
}

func (f *flakyBus) PublishEnvelope(ctx context.Context, topic string, env *eventbus.Envelope) error {
	f.mu.Lock()
	f.calls++
	fail := f.failAt > 0 && f.calls >= f.failAt
	f.mu.Unlock()
	if fail {
		return errors.New("broker unavailable")
	}
	return f.EventBus.PublishEnvelope(ctx, topic, env)
}
