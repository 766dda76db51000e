package commandbus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/idempotency"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
)

type placeOrder struct {
	Metadata
	CustomerID string `validate:"required"`
	Quantity   int    `validate:"gt=0"`
}

func (placeOrder) CommandType() string { return "PlaceOrder" }

type reserveItem struct {
	Metadata
	ProductID string `validate:"required"`
}

func (reserveItem) CommandType() string { return "ReserveItem" }

func (c reserveItem) IdempotencyKey() string { return c.ProductID }

func newPlaceOrder(correlationID string) *placeOrder {
	return &placeOrder{Metadata: NewMetadata(correlationID, ""), CustomerID: "cust-1", Quantity: 1}
}

func TestNewMetadata(t *testing.T) {
	m := NewMetadata("", "cause")
	assert.NotEmpty(t, m.CommandID)
	assert.NotEmpty(t, m.CorrelationID)
	assert.Equal(t, "cause", m.CausationID)
	assert.WithinDuration(t, time.Now(), m.IssuedAt, time.Second)

	assert.Equal(t, "corr-1", NewMetadata("corr-1", "").CorrelationID)
}

func TestBus_Execute(t *testing.T) {
	b := New(zap.NewNop())
	var got *placeOrder
	Handle(b, "PlaceOrder", func(ctx context.Context, cmd *placeOrder) error {
		got = cmd
		return nil
	})

	cmd := newPlaceOrder("corr-1")
	require.NoError(t, b.Execute(context.Background(), cmd))
	assert.Same(t, cmd, got)
	assert.Equal(t, 1, b.Registered())
}

func TestBus_ExecuteErrors(t *testing.T) {
	b := New(zap.NewNop())
	Handle(b, "PlaceOrder", func(ctx context.Context, cmd *placeOrder) error {
		return errs.Invariantf("order closed")
	})
	b.Register("ReserveItem", func(ctx context.Context, cmd Command) error { return nil })
	// 类型与注册不符
	Handle(b, "Mismatched", func(ctx context.Context, cmd *reserveItem) error { return nil })

	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"nil command", nil, errs.ErrValidation},
		{"type mismatch", &mismatched{}, errs.ErrValidation},
		{"handler error passes through", newPlaceOrder("c"), errs.ErrInvariantViolation},
		{"unregistered", &unknownCommand{}, errs.ErrNoHandlerRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Execute(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

type unknownCommand struct{ Metadata }

func (unknownCommand) CommandType() string { return "Unknown" }

type mismatched struct{ Metadata }

func (mismatched) CommandType() string { return "Mismatched" }

func TestBus_RegisterReplaces(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := New(zap.New(core))

	var calls []string
	b.Register("PlaceOrder", func(ctx context.Context, cmd Command) error { calls = append(calls, "first"); return nil })
	b.Register("PlaceOrder", func(ctx context.Context, cmd Command) error { calls = append(calls, "second"); return nil })

	require.NoError(t, b.Execute(context.Background(), newPlaceOrder("c")))
	assert.Equal(t, []string{"second"}, calls)
	assert.Equal(t, 1, logs.FilterMessage("replacing command handler").Len())
}

func TestBus_MiddlewareOrder(t *testing.T) {
	b := New(zap.NewNop())
	var trace []string
	mw := func(name string) Middleware {
		return func(commandType string, next Handler) Handler {
			return func(ctx context.Context, cmd Command) error {
				trace = append(trace, name+">")
				err := next(ctx, cmd)
				trace = append(trace, "<"+name)
				return err
			}
		}
	}
	b.Use(mw("outer"), mw("inner"))
	b.Register("PlaceOrder", func(ctx context.Context, cmd Command) error {
		trace = append(trace, "handler")
		return nil
	})

	require.NoError(t, b.Execute(context.Background(), newPlaceOrder("c")))
	assert.Equal(t, []string{"outer>", "inner>", "handler", "<inner", "<outer"}, trace)
}

func TestValidation(t *testing.T) {
	b := New(zap.NewNop())
	b.Use(Validation(nil))
	called := 0
	b.Register("PlaceOrder", func(ctx context.Context, cmd Command) error { called++; return nil })

	tests := []struct {
		name    string
		mutate  func(c *placeOrder)
		wantErr bool
	}{
		{"valid", func(c *placeOrder) {}, false},
		{"missing customer", func(c *placeOrder) { c.CustomerID = "" }, true},
		{"zero quantity", func(c *placeOrder) { c.Quantity = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = 0
			cmd := newPlaceOrder("c")
			tt.mutate(cmd)
			err := b.Execute(context.Background(), cmd)
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrValidation)
				assert.Equal(t, 0, called)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, 1, called)
		})
	}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	b := New(zap.NewNop())
	b.Use(Logging(zap.New(core)))

	fail := errors.New("store unavailable")
	b.Register("PlaceOrder", func(ctx context.Context, cmd Command) error { return nil })
	b.Register("ReserveItem", func(ctx context.Context, cmd Command) error { return fail })

	require.NoError(t, b.Execute(context.Background(), newPlaceOrder("corr-log")))
	assert.ErrorIs(t, b.Execute(context.Background(), &reserveItem{Metadata: NewMetadata("corr-log", ""), ProductID: "p"}), fail)

	handled := logs.FilterMessage("command handled").All()
	require.Len(t, handled, 1)
	assert.Equal(t, "corr-log", handled[0].ContextMap()["correlationId"])
	assert.Equal(t, 1, logs.FilterMessage("command failed").Len())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector("test", reg)
	store, err := idempotency.NewMemoryStore(10)
	require.NoError(t, err)

	b := New(zap.NewNop())
	b.Use(Metrics(c), Idempotency(store, time.Minute, zap.NewNop()))
	b.Register("PlaceOrder", func(ctx context.Context, cmd Command) error { return nil })
	b.Register("ReserveItem", func(ctx context.Context, cmd Command) error { return errs.Invariantf("no") })

	ctx := context.Background()
	require.NoError(t, b.Execute(ctx, newPlaceOrder("c1")))
	require.NoError(t, b.Execute(ctx, newPlaceOrder("c1")))
	require.Error(t, b.Execute(ctx, &reserveItem{Metadata: NewMetadata("c2", ""), ProductID: "p"}))

	expected := `
# HELP test_commands_total Total number of commands executed by the command bus
# TYPE test_commands_total counter
test_commands_total{command="PlaceOrder",outcome="duplicate"} 1
test_commands_total{command="PlaceOrder",outcome="ok"} 1
test_commands_total{command="ReserveItem",outcome="error"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_commands_total"))
}

func TestIdempotency(t *testing.T) {
	ctx := context.Background()
	store, err := idempotency.NewMemoryStore(100)
	require.NoError(t, err)

	b := New(zap.NewNop())
	b.Use(Idempotency(store, time.Hour, zap.NewNop()))

	var (
		mu    sync.Mutex
		calls []string
	)
	failNext := true
	b.Register("PlaceOrder", func(ctx context.Context, cmd Command) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, "place:"+cmd.Meta().CorrelationID)
		return nil
	})
	b.Register("ReserveItem", func(ctx context.Context, cmd Command) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, "reserve:"+cmd.(*reserveItem).ProductID)
		if failNext && cmd.(*reserveItem).ProductID == "p-fail" {
			failNext = false
			return errors.New("transient")
		}
		return nil
	})

	reserve := func(productID string) *reserveItem {
		return &reserveItem{Metadata: NewMetadata("order-1", ""), ProductID: productID}
	}

	// 重复命令返回 nil 且不执行
	require.NoError(t, b.Execute(ctx, newPlaceOrder("order-1")))
	require.NoError(t, b.Execute(ctx, newPlaceOrder("order-1")))

	// 同一关联ID下的不同商品互不影响
	require.NoError(t, b.Execute(ctx, reserve("p-1")))
	require.NoError(t, b.Execute(ctx, reserve("p-2")))
	require.NoError(t, b.Execute(ctx, reserve("p-1")))

	// 失败后释放，重投递可以重试
	require.Error(t, b.Execute(ctx, reserve("p-fail")))
	require.NoError(t, b.Execute(ctx, reserve("p-fail")))
	require.NoError(t, b.Execute(ctx, reserve("p-fail")))

	assert.Equal(t, []string{
		"place:order-1",
		"reserve:p-1",
		"reserve:p-2",
		"reserve:p-fail",
		"reserve:p-fail",
	}, calls)
}

type failingStore struct{}

func (failingStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func (failingStore) Release(ctx context.Context, key string) error { return nil }

func TestIdempotency_StoreError(t *testing.T) {
	b := New(zap.NewNop())
	b.Use(Idempotency(failingStore{}, time.Hour, zap.NewNop()))
	called := false
	b.Register("PlaceOrder", func(ctx context.Context, cmd Command) error { called = true; return nil })

	err := b.Execute(context.Background(), newPlaceOrder("c"))
	assert.EqualError(t, err, "redis down")
	assert.False(t, called)
}
