package payment

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

// Subscribe 支付服务对订单事件的反应
//
//	OrderStockReserved → ProcessPayment
//	OrderCancelled     → CancelPayment
func Subscribe(c *saga.Consumer, bus *commandbus.Bus, topics config.TopicConfig) {
	c.On(topics.Orders, contracts.OrderStockReservedType, func(ctx context.Context, e event.Event) error {
		evt := e.(*contracts.OrderStockReserved)
		return bus.Execute(ctx, &ProcessPayment{
			Metadata:   saga.Caused(e),
			OrderID:    evt.AggregateID,
			Amount:     evt.TotalAmount,
			CustomerID: evt.CustomerID,
		})
	})

	c.On(topics.Orders, contracts.OrderCancelledType, func(ctx context.Context, e event.Event) error {
		evt := e.(*contracts.OrderCancelled)
		err := bus.Execute(ctx, &CancelPayment{
			Metadata: saga.Caused(e),
			OrderID:  evt.AggregateID,
			Reason:   evt.Reason,
		})
		// 订单在付款前取消，或者正是支付失败导致的取消
		if errors.Is(err, errs.ErrAggregateNotFound) || errors.Is(err, errs.ErrInvariantViolation) {
			logger.FromContext(ctx).Debug("nothing to compensate", zap.String("orderId", evt.AggregateID), zap.Error(err))
			return nil
		}
		return err
	})
}
