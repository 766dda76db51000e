package eventstore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/json"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
)

func TestBusStore_AppendAndGetEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestBusStore(t, newTestBus(t))

	stored, err := s.AppendEvents(ctx, "counter-1", events(incremented("c1", 1), incremented("c1", 2)), 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(1), stored[0].AggregateVersion)
	assert.Equal(t, int64(2), stored[1].AggregateVersion)
	assert.Equal(t, "counter-1", stored[1].AggregateID)
	assert.Less(t, stored[0].Position, stored[1].Position)

	_, err = s.AppendEvents(ctx, "counter-1", events(reset("c1")), 2)
	require.NoError(t, err)

	tests := []struct {
		name        string
		fromVersion int64
		want        []int64
	}{
		{"all", 0, []int64{1, 2, 3}},
		{"after first", 1, []int64{2, 3}},
		{"after last", 3, nil},
		{"beyond", 10, nil},
		{"negative", -1, []int64{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetEvents(ctx, "counter-1", tt.fromVersion)
			require.NoError(t, err)
			var versions []int64
			for _, se := range got {
				versions = append(versions, se.AggregateVersion)
			}
			assert.Equal(t, tt.want, versions)
		})
	}

	version, err := s.StreamVersion(ctx, "counter-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)

	var by struct {
		By int `json:"by"`
	}
	got, _ := s.GetEvents(ctx, "counter-1", 1)
	require.NoError(t, json.Unmarshal(got[0].Data, &by))
	assert.Equal(t, 2, by.By)
}

func TestBusStore_StaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("test", reg)
	bus := newTestBus(t)
	s := NewBusStore(bus, BusStoreConfig{EventsTopic: "counter-events", SnapshotsTopic: "aggregate-snapshots"}, WithMetrics(m))
	require.NoError(t, s.Connect(ctx))

	_, err := s.AppendEvents(ctx, "counter-1", events(incremented("c1", 1)), 0)
	require.NoError(t, err)

	for _, expected := range []int64{0, 2, 5} {
		_, err = s.AppendEvents(ctx, "counter-1", events(incremented("c1", 9), incremented("c1", 9)), expected)
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrConcurrencyConflict)

		var conflict *errs.ConcurrencyConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, expected, conflict.Expected)
		assert.Equal(t, int64(1), conflict.Actual)
	}

	got, err := s.GetEvents(ctx, "counter-1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	expected := `
# HELP test_append_conflicts_total Total number of appends rejected by the optimistic concurrency check
# TYPE test_append_conflicts_total counter
test_append_conflicts_total 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_append_conflicts_total"))
}

// TestBusStore_ConcurrentAppends 同一期望版本并发追加，只有一个成功
func TestBusStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := newTestBusStore(t, newTestBus(t))

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendEvents(ctx, "counter-1", events(incremented("c1", i)), 0)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if assert.ErrorIs(t, err, errs.ErrConcurrencyConflict) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, writers-1, conflicts)
	version, _ := s.StreamVersion(ctx, "counter-1")
	assert.Equal(t, int64(1), version)
}

func TestBusStore_PublishFailureRollsBack(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		failAt      int
		wantVersion int64
	}{
		{"first publish fails", 1, 0},
		{"second publish fails", 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &flakyBus{EventBus: newTestBus(t), failAt: tt.failAt}
			s := newTestBusStore(t, bus)

			_, err := s.AppendEvents(ctx, "counter-1", events(incremented("c1", 1), incremented("c1", 2), incremented("c1", 3)), 0)
			require.Error(t, err)
			assert.NotErrorIs(t, err, errs.ErrConcurrencyConflict)

			version, _ := s.StreamVersion(ctx, "counter-1")
			assert.Equal(t, tt.wantVersion, version)

			bus.failAt = 0
			_, err = s.AppendEvents(ctx, "counter-1", events(incremented("c1", 4)), tt.wantVersion)
			assert.NoError(t, err)
		})
	}
}

func TestBusStore_QueriesOrderedByOccurrence(t *testing.T) {
	ctx := context.Background()
	s := newTestBusStore(t, newTestBus(t))

	base := time.Now().UTC()
	late := incremented("corr-a", 1)
	late.OccurredAt = base.Add(time.Second)
	early := incremented("corr-a", 2)
	early.OccurredAt = base
	tie := reset("corr-a")
	tie.OccurredAt = base
	other := incremented("corr-b", 3)

	_, err := s.AppendEvents(ctx, "counter-1", events(late), 0)
	require.NoError(t, err)
	_, err = s.AppendEvents(ctx, "counter-2", events(early, tie), 0)
	require.NoError(t, err)
	_, err = s.AppendEvents(ctx, "counter-3", events(other), 0)
	require.NoError(t, err)

	byCorr, err := s.GetEventsByCorrelationID(ctx, "corr-a")
	require.NoError(t, err)
	require.Len(t, byCorr, 3)
	assert.Equal(t, early.EventID, byCorr[0].EventID)
	assert.Equal(t, tie.EventID, byCorr[1].EventID)
	assert.Equal(t, late.EventID, byCorr[2].EventID)

	byType, err := s.GetEventsByType(ctx, typeIncremented)
	require.NoError(t, err)
	assert.Len(t, byType, 3)

	streams, err := s.ListStreams(ctx, "Counter")
	require.NoError(t, err)
	assert.Equal(t, []string{"counter-1", "counter-2", "counter-3"}, streams)

	none, err := s.ListStreams(ctx, "Order")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBusStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	s := newTestBusStore(t, newTestBus(t))

	snap, err := s.GetLatestSnapshot(ctx, "counter-1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	state := map[string]int{"value": 10}
	require.NoError(t, s.CreateSnapshot(ctx, "counter-1", "Counter", state, 10))
	require.NoError(t, s.CreateSnapshot(ctx, "counter-1", "Counter", map[string]int{"value": 5}, 5))

	snap, err = s.GetLatestSnapshot(ctx, "counter-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(10), snap.Version)
	assert.Equal(t, "Counter", snap.AggregateType)
	assert.JSONEq(t, `{"value":10}`, string(snap.Data))

	assert.Error(t, s.CreateSnapshot(ctx, "counter-1", "Counter", state, 0))
}

// TestBusStore_RebuildsFromTopic 新进程从 topic 头部重建读模型
func TestBusStore_RebuildsFromTopic(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(t)
	first := newTestBusStore(t, bus)

	_, err := first.AppendEvents(ctx, "counter-1", events(incremented("c1", 1), incremented("c1", 2)), 0)
	require.NoError(t, err)
	require.NoError(t, first.CreateSnapshot(ctx, "counter-1", "Counter", map[string]int{"value": 3}, 2))

	second := newTestBusStore(t, bus)
	require.Eventually(t, func() bool {
		v, _ := second.StreamVersion(ctx, "counter-1")
		snap, _ := second.GetLatestSnapshot(ctx, "counter-1")
		return v == 2 && snap != nil
	}, 2*time.Second, 10*time.Millisecond)

	_, err = second.AppendEvents(ctx, "counter-1", events(incremented("c1", 3)), 0)
	assert.ErrorIs(t, err, errs.ErrConcurrencyConflict)

	_, err = second.AppendEvents(ctx, "counter-1", events(incremented("c1", 3)), 2)
	require.NoError(t, err)

	// 第一个进程通过消费追上
	require.Eventually(t, func() bool {
		v, _ := first.StreamVersion(ctx, "counter-1")
		return v == 3
	}, 2*time.Second, 10*time.Millisecond)
	got, _ := first.GetEvents(ctx, "counter-1", 0)
	assert.Len(t, got, 3)
}

func TestBusStore_SkipsUndecodableMessages(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(t)
	s := newTestBusStore(t, bus)

	bad := eventbus.NewEnvelope("bad-1", "counter-1", "CounterIncremented", 1, []byte(`{"unexpected":true}`))
	require.NoError(t, bus.PublishEnvelope(ctx, "counter-events", bad))

	_, err := s.AppendEvents(ctx, "counter-1", events(incremented("c1", 1)), 0)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	got, err := s.GetEvents(ctx, "counter-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, typeIncremented, got[0].EventType)
}

func TestBusStore_DisconnectIdempotent(t *testing.T) {
	s := newTestBusStore(t, newTestBus(t))
	assert.NoError(t, s.Disconnect(context.Background()))
	assert.NoError(t, s.Disconnect(context.Background()))

	_, err := s.AppendEvents(context.Background(), "counter-1", events(incremented("c1", 1)), 0)
	assert.ErrorIs(t, err, eventbus.ErrEventBusClosed)
}

func TestBusStore_RejectsInvalidInput(t *testing.T) {
	s := newTestBusStore(t, newTestBus(t))
	ctx := context.Background()

	stored, err := s.AppendEvents(ctx, "counter-1", nil, 0)
	assert.NoError(t, err)
	assert.Nil(t, stored)

	_, err = s.AppendEvents(ctx, "", events(incremented("c1", 1)), 0)
	assert.Error(t, err)

	_, err = s.AppendEvents(ctx, "counter-1", events(nil), 0)
	assert.Error(t, err)
}
