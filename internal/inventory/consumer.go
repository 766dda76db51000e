package inventory

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/internal/saga"
	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
)

// Subscribe 库存服务对订单事件的反应
//
//	OrderCreated   → 逐行 ReserveStock，库存不足或停用时 RejectReservation
//	OrderConfirmed → 该订单仍预留的每个商品 MoveToInTransit
//	OrderCancelled → 该订单仍预留的每个商品 ReleaseStock
func Subscribe(c *saga.Consumer, bus *commandbus.Bus, repo *Repository, topics config.TopicConfig) {
	c.On(topics.Orders, contracts.OrderCreatedType, func(ctx context.Context, e event.Event) error {
		evt := e.(*contracts.OrderCreated)
		orderID := evt.AggregateID
		for _, it := range evt.Items {
			err := bus.Execute(ctx, &ReserveStock{StockCommand: stock(saga.Caused(e), it.ProductID, orderID, it.Quantity)})
			if err == nil {
				continue
			}
			if reason, ok := rejection(err); ok {
				return bus.Execute(ctx, &RejectReservation{
					StockCommand: stock(saga.Caused(e), it.ProductID, orderID, it.Quantity),
					Reason:       reason,
				})
			}
			if errors.Is(err, errs.ErrAggregateNotFound) {
				logger.FromContext(ctx).Warn("no inventory for ordered product",
					zap.String("orderId", orderID),
					zap.String("productId", it.ProductID))
				continue
			}
			return err
		}
		return nil
	})

	c.On(topics.Orders, contracts.OrderConfirmedType, func(ctx context.Context, e event.Event) error {
		return forReserved(ctx, repo, e, func(inv *Inventory, qty int64) error {
			return bus.Execute(ctx, &MoveToInTransit{StockCommand: stock(saga.Caused(e), inv.ProductID, e.Meta().AggregateID, qty)})
		})
	})

	c.On(topics.Orders, contracts.OrderCancelledType, func(ctx context.Context, e event.Event) error {
		return forReserved(ctx, repo, e, func(inv *Inventory, qty int64) error {
			return bus.Execute(ctx, &ReleaseStock{StockCommand: stock(saga.Caused(e), inv.ProductID, e.Meta().AggregateID, qty)})
		})
	})
}

// rejection 可以转为 StockReservationFailed 的预留错误
func rejection(err error) (string, bool) {
	switch {
	case errors.Is(err, errs.ErrInsufficientStock):
		return "insufficient stock", true
	case errors.Is(err, ErrInactive):
		return "inventory is inactive", true
	default:
		return "", false
	}
}

// forReserved 对订单仍占用预留的每个商品执行 fn
func forReserved(ctx context.Context, repo *Repository, e event.Event, fn func(inv *Inventory, qty int64) error) error {
	orderID := e.Meta().AggregateID
	held, err := repo.FindReservedFor(ctx, orderID)
	if err != nil {
		return err
	}
	for _, inv := range held {
		if err := fn(inv, inv.ReservedFor(orderID)); err != nil {
			return err
		}
	}
	return nil
}
