package order

import (
	"context"
	"fmt"

	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/internal/saga"
	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
)

// Subscribe 订单服务对库存与支付事件的反应
//
//	StockReserved          → RecordReservation
//	StockReservationFailed → CancelOrder
//	PaymentConfirmed       → ConfirmOrder
//	PaymentFailed          → CancelOrder
func Subscribe(c *saga.Consumer, bus *commandbus.Bus, topics config.TopicConfig) {
	c.On(topics.Inventory, contracts.StockReservedType, func(ctx context.Context, e event.Event) error {
		evt := e.(*contracts.StockReserved)
		return bus.Execute(ctx, &RecordReservation{
			Metadata:  saga.Caused(e),
			OrderID:   evt.OrderID,
			ProductID: evt.ProductID,
			Quantity:  evt.Quantity,
		})
	})

	c.On(topics.Inventory, contracts.StockReservationFailedType, func(ctx context.Context, e event.Event) error {
		evt := e.(*contracts.StockReservationFailed)
		return bus.Execute(ctx, &CancelOrder{
			Metadata: saga.Caused(e),
			OrderID:  evt.OrderID,
			Reason:   fmt.Sprintf("stock reservation failed for product %s: %s", evt.ProductID, evt.Reason),
		})
	})

	c.On(topics.Payments, contracts.PaymentConfirmedType, func(ctx context.Context, e event.Event) error {
		evt := e.(*contracts.PaymentConfirmed)
		return bus.Execute(ctx, &ConfirmOrder{
			Metadata: saga.Caused(e),
			OrderID:  evt.OrderID,
		})
	})

	c.On(topics.Payments, contracts.PaymentFailedType, func(ctx context.Context, e event.Event) error {
		evt := e.(*contracts.PaymentFailed)
		return bus.Execute(ctx, &CancelOrder{
			Metadata: saga.Caused(e),
			OrderID:  evt.OrderID,
			Reason:   "payment failed: " + evt.Reason,
		})
	})
}
