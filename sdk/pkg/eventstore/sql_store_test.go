package eventstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/outbox"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	s := NewSQLStore(newTestDB(t))
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func TestSQLStore_AppendAndGetEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	stored, err := s.AppendEvents(ctx, "counter-1", events(incremented("c1", 1), incremented("c1", 2)), 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(2), stored[1].AggregateVersion)
	assert.Greater(t, stored[1].Position, stored[0].Position)

	_, err = s.AppendEvents(ctx, "counter-1", events(reset("c1")), 2)
	require.NoError(t, err)

	got, err := s.GetEvents(ctx, "counter-1", 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].AggregateVersion)
	assert.Equal(t, typeReset, got[1].EventType)
	assert.Equal(t, "Counter", got[1].AggregateType)
	assert.Contains(t, string(got[0].Data), `"by":2`)

	version, err := s.StreamVersion(ctx, "counter-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)

	version, err = s.StreamVersion(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
}

func TestSQLStore_StaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	_, err := s.AppendEvents(ctx, "counter-1", events(incremented("c1", 1)), 0)
	require.NoError(t, err)

	tests := []struct {
		name     string
		expected int64
	}{
		{"behind", 0},
		{"ahead", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AppendEvents(ctx, "counter-1", events(incremented("c1", 2), incremented("c1", 3)), tt.expected)
			require.ErrorIs(t, err, errs.ErrConcurrencyConflict)

			var conflict *errs.ConcurrencyConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, int64(1), conflict.Actual)

			got, _ := s.GetEvents(ctx, "counter-1", 0)
			assert.Len(t, got, 1)
		})
	}
}

// TestSQLStore_ConcurrentAppends 唯一索引与事务内检查保证只有一个写入成功
func TestSQLStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	const writers = 8
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendEvents(ctx, "counter-1", events(incremented("c1", i)), 0)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, errs.ErrConcurrencyConflict)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	version, _ := s.StreamVersion(ctx, "counter-1")
	assert.Equal(t, int64(1), version)
}

func TestSQLStore_Queries(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	base := time.Now().UTC().Truncate(time.Millisecond)
	late := incremented("corr-a", 1)
	late.OccurredAt = base.Add(time.Second)
	early := incremented("corr-a", 2)
	early.OccurredAt = base

	_, err := s.AppendEvents(ctx, "counter-1", events(late), 0)
	require.NoError(t, err)
	_, err = s.AppendEvents(ctx, "counter-2", events(early, reset("corr-b")), 0)
	require.NoError(t, err)

	byCorr, err := s.GetEventsByCorrelationID(ctx, "corr-a")
	require.NoError(t, err)
	require.Len(t, byCorr, 2)
	assert.Equal(t, early.EventID, byCorr[0].EventID)
	assert.Equal(t, late.EventID, byCorr[1].EventID)

	byType, err := s.GetEventsByType(ctx, typeReset)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "counter-2", byType[0].AggregateID)

	streams, err := s.ListStreams(ctx, "Counter")
	require.NoError(t, err)
	assert.Equal(t, []string{"counter-1", "counter-2"}, streams)
}

func TestSQLStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	snap, err := s.GetLatestSnapshot(ctx, "counter-1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	tests := []struct {
		name        string
		version     int64
		value       int
		wantVersion int64
		wantValue   string
	}{
		{"first", 10, 10, 10, `{"value":10}`},
		{"older ignored", 5, 5, 10, `{"value":10}`},
		{"same ignored", 10, 11, 10, `{"value":10}`},
		{"newer replaces", 20, 20, 20, `{"value":20}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.CreateSnapshot(ctx, "counter-1", "Counter", map[string]int{"value": tt.value}, tt.version))
			snap, err := s.GetLatestSnapshot(ctx, "counter-1")
			require.NoError(t, err)
			require.NotNil(t, snap)
			assert.Equal(t, tt.wantVersion, snap.Version)
			assert.JSONEq(t, tt.wantValue, string(snap.Data))
		})
	}
}

func TestSQLStore_OutboxRelaysCommittedEvents(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(t)
	db := newTestDB(t)
	s := NewSQLStore(db).WithOutbox("counter-events")
	require.NoError(t, s.Connect(ctx))

	var (
		mu   sync.Mutex
		seen []*eventbus.Envelope
	)
	require.NoError(t, bus.SubscribeEnvelope(ctx, "counter-events", func(ctx context.Context, env *eventbus.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, env)
		return nil
	}, eventbus.WithGroup("observer")))

	e := incremented("corr-relay", 1)
	_, err := s.AppendEvents(ctx, "counter-1", events(e), 0)
	require.NoError(t, err)

	// 冲突的追加不写发件箱
	_, err = s.AppendEvents(ctx, "counter-1", events(incremented("corr-relay", 2)), 0)
	require.ErrorIs(t, err, errs.ErrConcurrencyConflict)

	repo := outbox.NewRepository(db)
	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[outbox.StatusPending])

	n, err := outbox.NewScheduler(repo, bus, config.OutboxConfig{}).Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, e.EventID, seen[0].EventID)
	assert.Equal(t, "counter-1", seen[0].AggregateID)
	assert.Equal(t, "corr-relay", seen[0].CorrelationID)
	assert.Equal(t, int64(1), seen[0].EventVersion)
}
