package order

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
	Snapshots: contracts.TopicSnapshots,
	Traces:    contracts.TopicTraces,
}

func startConsumer(t *testing.T, f *fixture) {
	t.Helper()
	c := saga.NewConsumer(f.bus, "order-service-group", contracts.All(), saga.WithLogger(zap.NewNop()))
	Subscribe(c, f.cmds, topics)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
}

func (f *fixture) status(id string) Status {
	o, found, err := f.repo.FindByID(context.Background(), id)
	if err != nil || !found {
		return ""
	}
	return o.Status
}

func reserved(orderID, productID string, qty int64) *contracts.StockReserved {
	return &contracts.StockReserved{
		Metadata:      event.New(contracts.StockReservedType),
		StockMovement: contracts.StockMovement{OrderID: orderID, ProductID: productID, Quantity: qty},
	}
}

func TestSubscribe_HappyPath(t *testing.T) {
	f := newFixture(t)
	startConsumer(t, f)
	f.create(t, "o-1", ItemRequest{ProductID: "P1", Quantity: 2}, ItemRequest{ProductID: "P2", Quantity: 1})

	testkit.Publish(t, f.bus, topics.Inventory, "P1", "corr-o-1", reserved("o-1", "P1", 2))
	testkit.Publish(t, f.bus, topics.Inventory, "P2", "corr-o-1", reserved("o-1", "P2", 1))
	testkit.Eventually(t, func() bool {
		o, found, err := f.repo.FindByID(context.Background(), "o-1")
		return err == nil && found && o.FullyReserved()
	}, "order fully reserved")

	testkit.Publish(t, f.bus, topics.Payments, "pay-1", "corr-o-1", &contracts.PaymentConfirmed{
		Metadata: event.New(contracts.PaymentConfirmedType),
		OrderID:  "o-1",
		Amount:   25,
	})
	testkit.Eventually(t, func() bool { return f.status("o-1") == StatusConfirmed }, "order confirmed")

	events, err := f.store.GetEventsByType(context.Background(), contracts.OrderConfirmedType)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "corr-o-1", events[0].CorrelationID)
}

func TestSubscribe_Compensation(t *testing.T) {
	tests := []struct {
		name   string
		topic  string
		evt    event.Event
		reason string
	}{
		{
			name:  "stock reservation failed",
			topic: topics.Inventory,
			evt: &contracts.StockReservationFailed{
				Metadata:      event.New(contracts.StockReservationFailedType),
				StockMovement: contracts.StockMovement{OrderID: "o-1", ProductID: "P1", Quantity: 2},
				Reason:        "insufficient stock",
			},
			reason: "stock reservation failed for product P1: insufficient stock",
		},
		{
			name:  "payment failed",
			topic: topics.Payments,
			evt: &contracts.PaymentFailed{
				Metadata: event.New(contracts.PaymentFailedType),
				OrderID:  "o-1",
				Reason:   "card declined",
			},
			reason: "payment failed: card declined",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			startConsumer(t, f)
			f.create(t, "o-1", ItemRequest{ProductID: "P1", Quantity: 2})

			testkit.Publish(t, f.bus, tt.topic, "x-1", "corr-o-1", tt.evt)
			testkit.Eventually(t, func() bool { return f.status("o-1") == StatusCancelled }, "order cancelled")
			assert.Equal(t, tt.reason, f.order(t, "o-1").CancelReason)
		})
	}
}

func TestSubscribe_IgnoresUnrelatedEvents(t *testing.T) {
	f := newFixture(t)
	startConsumer(t, f)
	f.create(t, "o-1", ItemRequest{ProductID: "P1", Quantity: 1})

	testkit.Publish(t, f.bus, topics.Inventory, "P1", "corr-o-1", &contracts.InventoryUpdated{
		Metadata:  event.New(contracts.InventoryUpdatedType),
		ProductID: "P1",
		Available: 1,
	})
	// 之后的预留照常处理，说明前一条消息被跳过而非阻塞
	testkit.Publish(t, f.bus, topics.Inventory, "P1", "corr-o-1", reserved("o-1", "P1", 1))
	testkit.Eventually(t, func() bool {
		o, found, err := f.repo.FindByID(context.Background(), "o-1")
		return err == nil && found && o.FullyReserved()
	}, "order fully reserved")

	assert.Equal(t, int64(3), f.order(t, "o-1").Version())
}
