package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/internal/saga"
	"github.com/ChenBigdata421/jxt-saga/internal/testkit"
	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
)

var topics = config.TopicConfig{
	Orders:    contracts.TopicOrders,
	Payments:  contracts.TopicPayments,
	Inventory: contracts.TopicInventory,
}

func startConsumer(t *testing.T, f *fixture) {
	t.Helper()
	c := saga.NewConsumer(f.bus, "payment-service-group", contracts.All(), saga.WithLogger(zap.NewNop()))
	Subscribe(c, f.cmds, topics)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
}

func (f *fixture) status(orderID string) Status {
	p, found, err := f.repo.FindByOrderID(context.Background(), orderID)
	if err != nil || !found {
		return ""
	}
	return p.Status
}

func stockReserved(orderID string, total int64) *contracts.OrderStockReserved {
	e := &contracts.OrderStockReserved{
		Metadata:    event.New(contracts.OrderStockReservedType),
		CustomerID:  "c-1",
		TotalAmount: total,
	}
	e.AggregateID = orderID
	e.AggregateVersion = 3
	return e
}

func cancelled(orderID, reason string) *contracts.OrderCancelled {
	e := &contracts.OrderCancelled{Metadata: event.New(contracts.OrderCancelledType), Reason: reason}
	e.AggregateID = orderID
	e.AggregateVersion = 4
	return e
}

func TestSubscribe_ProcessesReservedOrders(t *testing.T) {
	f := newFixture(t)
	startConsumer(t, f)

	in := stockReserved("o-1", 2500)
	testkit.Publish(t, f.bus, topics.Orders, "o-1", "corr-o-1", in)
	testkit.Eventually(t, func() bool { return f.status("o-1") == StatusConfirmed }, "payment confirmed")

	p := f.payment(t, "o-1")
	assert.Equal(t, int64(2500), p.Amount)
	assert.Equal(t, "c-1", p.CustomerID)

	events, err := f.store.GetEventsByType(context.Background(), contracts.PaymentInitiatedType)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "corr-o-1", events[0].CorrelationID)
	assert.Equal(t, p.ID(), events[0].AggregateID)
}

func TestSubscribe_CancelledOrder(t *testing.T) {
	f := newFixture(t)
	startConsumer(t, f)

	testkit.Publish(t, f.bus, topics.Orders, "o-1", "corr-o-1", stockReserved("o-1", 100))
	testkit.Eventually(t, func() bool { return f.status("o-1") == StatusConfirmed }, "payment confirmed")

	// 没有支付的订单被取消，什么也不做
	testkit.Publish(t, f.bus, topics.Orders, "o-2", "corr-o-2", cancelled("o-2", "stock reservation failed"))
	testkit.Publish(t, f.bus, topics.Orders, "o-1", "corr-o-1", cancelled("o-1", "cancelled by customer"))
	testkit.Eventually(t, func() bool { return f.status("o-1") == StatusFailed }, "payment failed")

	assert.Equal(t, "cancelled by customer", f.payment(t, "o-1").FailureReason)
	assert.Equal(t, Status(""), f.status("o-2"))
}
