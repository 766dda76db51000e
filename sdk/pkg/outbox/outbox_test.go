package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return db
}

// recordingBus 记录转发的包络，对 failing 中的聚合返回错误
type recordingBus struct {
	eventbus.EventBus

	mu        sync.Mutex
	published []*eventbus.Envelope
	failing   map[string]bool
}

func (b *recordingBus) PublishEnvelope(_ context.Context, topic string, env *eventbus.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing[env.AggregateID] {
		return errors.New("broker unavailable")
	}
	b.published = append(b.published, env)
	return nil
}

func (b *recordingBus) setFailing(aggregateIDs ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = make(map[string]bool)
	for _, id := range aggregateIDs {
		b.failing[id] = true
	}
}

func (b *recordingBus) versions(aggregateID string) []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []int64
	for _, env := range b.published {
		if env.AggregateID == aggregateID {
			out = append(out, env.EventVersion)
		}
	}
	return out
}

func enqueue(t *testing.T, db *gorm.DB, aggregateID string, versions ...int64) {
	t.Helper()
	records := make([]*Record, 0, len(versions))
	for _, v := range versions {
		env := eventbus.NewEnvelope(fmt.Sprintf("%s-%d", aggregateID, v), aggregateID, "OrderCreated", v, []byte(`{"orderId":"`+aggregateID+`"}`))
		env.CorrelationID = "corr-" + aggregateID
		records = append(records, FromEnvelope("order-events", env))
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return Save(tx, records...)
	}))
}

func TestScheduler_PollPublishesInOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bus := &recordingBus{}
	enqueue(t, db, "o-1", 1, 2, 3)
	enqueue(t, db, "o-2", 1)

	repo := NewRepository(db)
	s := NewScheduler(repo, bus, config.OutboxConfig{})
	n, err := s.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []int64{1, 2, 3}, bus.versions("o-1"))
	assert.Equal(t, "corr-o-1", bus.published[0].CorrelationID)
	assert.JSONEq(t, `{"orderId":"o-1"}`, string(bus.published[0].Payload))

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[StatusPublished])
	assert.Zero(t, counts[StatusPending])

	// 已转发的不再转发
	n, err = s.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler_FailureBlocksLaterRecordsOfSameAggregate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bus := &recordingBus{}
	bus.setFailing("o-1")
	enqueue(t, db, "o-1", 1, 2)
	enqueue(t, db, "o-2", 1)

	repo := NewRepository(db)
	s := NewScheduler(repo, bus, config.OutboxConfig{MaxRetries: 5})
	n, err := s.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, bus.versions("o-1"))
	assert.Equal(t, []int64{1}, bus.versions("o-2"))

	var first Record
	require.NoError(t, db.Where("event_id = ?", "o-1-1").First(&first).Error)
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, 1, first.RetryCount)
	assert.Equal(t, "broker unavailable", first.LastError)

	var second Record
	require.NoError(t, db.Where("event_id = ?", "o-1-2").First(&second).Error)
	assert.Zero(t, second.RetryCount)

	bus.setFailing()
	n, err = s.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, bus.versions("o-1"))
}

func TestScheduler_MaxRetry(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bus := &recordingBus{}
	bus.setFailing("o-1")
	enqueue(t, db, "o-1", 1)

	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("test", reg)
	repo := NewRepository(db)
	s := NewScheduler(repo, bus, config.OutboxConfig{MaxRetries: 3}, WithMetrics(m))
	for i := 0; i < 5; i++ {
		_, err := s.Poll(ctx)
		require.NoError(t, err)
	}

	var rec Record
	require.NoError(t, db.Where("event_id = ?", "o-1-1").First(&rec).Error)
	assert.Equal(t, StatusMaxRetry, rec.Status)
	assert.Equal(t, 3, rec.RetryCount)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[StatusMaxRetry])

	assert.Equal(t, map[string]float64{"failed": 2, "max_retry": 1}, relayed(t, reg))
}

func relayed(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, f := range families {
		if f.GetName() != "test_outbox_relayed_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					out[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	return out
}

func TestScheduler_Cleanup(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	enqueue(t, db, "o-1", 1, 2)
	enqueue(t, db, "o-2", 1)

	repo := NewRepository(db)
	pending, err := repo.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, repo.MarkPublished(ctx, []int64{pending[0].ID, pending[1].ID}, old))

	s := NewScheduler(repo, &recordingBus{}, config.OutboxConfig{Retention: 24 * time.Hour})
	deleted, err := s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Status]int64{StatusPending: 1}, counts)
}

func TestScheduler_StartStop(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bus := &recordingBus{}

	s := NewScheduler(NewRepository(db), bus, config.OutboxConfig{PollInterval: 10 * time.Millisecond, CleanupInterval: time.Hour})
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))

	enqueue(t, db, "o-1", 1)
	require.Eventually(t, func() bool {
		return len(bus.versions("o-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Stop(stopCtx))
}

func TestRecord_Envelope(t *testing.T) {
	env := eventbus.NewEnvelope("e-1", "o-1", "OrderCreated", 7, []byte(`{}`))
	env.CorrelationID = "c-1"
	env.CausationID = "cmd-1"

	rec := FromEnvelope("order-events", env)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "order-events", rec.Topic)

	back := rec.Envelope()
	assert.Equal(t, env.EventID, back.EventID)
	assert.Equal(t, env.EventVersion, back.EventVersion)
	assert.Equal(t, env.CausationID, back.CausationID)
	assert.True(t, env.Timestamp.Equal(back.Timestamp))
}
