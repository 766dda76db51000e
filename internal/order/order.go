// Package order 订单上下文：订单聚合、命令处理、跨服务消费与 HTTP 接口
package order

import (
	"time"

	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/aggregate"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
)

// Status 订单状态
type Status string

const (
	StatusCreated   Status = "created"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Order 订单聚合
//
// 状态机：created → confirmed，created|confirmed → cancelled。
// 总金额在创建时由目录价计算，之后不变。
type Order struct {
	aggregate.Root

	CustomerID   string                `json:"customerId"`
	Items        []contracts.OrderItem `json:"items"`
	TotalAmount  int64                 `json:"totalAmount"`
	Status       Status                `json:"status"`
	Reserved     map[string]bool       `json:"reserved,omitempty"` // 已预留库存的商品
	CancelReason string                `json:"cancelReason,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
	ConfirmedAt  *time.Time            `json:"confirmedAt,omitempty"`
	CancelledAt  *time.Time            `json:"cancelledAt,omitempty"`
}

// New 空订单，供仓储重建使用
func New() *Order {
	o := &Order{}
	o.Init(contracts.AggregateOrder, "")
	return o
}

// Create 在新聚合上创建订单，items 的单价来自商品目录
func (o *Order) Create(id, customerID string, items []contracts.OrderItem) error {
	if o.Version() != 0 {
		return errs.Invariantf("order %s already exists", o.ID())
	}
	if id == "" {
		return errs.Validationf("order id is required")
	}
	if customerID == "" {
		return errs.Invariantf("customer id is required")
	}
	if len(items) == 0 {
		return errs.Invariantf("order must contain at least one item")
	}

	seen := make(map[string]bool, len(items))
	var total int64
	for _, it := range items {
		switch {
		case it.ProductID == "":
			return errs.Invariantf("item product id is required")
		case seen[it.ProductID]:
			return errs.Invariantf("duplicate item for product %s", it.ProductID)
		case it.Quantity <= 0:
			return errs.Invariantf("quantity for product %s must be positive, got %d", it.ProductID, it.Quantity)
		case it.Price <= 0:
			return errs.Invariantf("price for product %s must be positive, got %d", it.ProductID, it.Price)
		}
		seen[it.ProductID] = true
		total += it.Quantity * it.Price
	}

	o.SetID(id)
	return o.Raise(o.Apply, &contracts.OrderCreated{
		Metadata:    event.New(contracts.OrderCreatedType),
		CustomerID:  customerID,
		Items:       append([]contracts.OrderItem(nil), items...),
		TotalAmount: total,
	})
}

// Confirm 仅 created 状态可以确认
func (o *Order) Confirm() error {
	if o.Status != StatusCreated {
		return errs.Invariantf("cannot confirm order %s in status %s", o.ID(), o.Status)
	}
	return o.Raise(o.Apply, &contracts.OrderConfirmed{
		Metadata:    event.New(contracts.OrderConfirmedType),
		TotalAmount: o.TotalAmount,
	})
}

// Cancel 已取消的订单不能再次取消
func (o *Order) Cancel(reason string) error {
	if o.Status == StatusCancelled {
		return errs.Invariantf("order %s is already cancelled", o.ID())
	}
	return o.Raise(o.Apply, &contracts.OrderCancelled{
		Metadata: event.New(contracts.OrderCancelledType),
		Reason:   reason,
	})
}

// RecordReservation 记录某个订单行的库存已预留
//
// 重复记录同一商品不产生事件；最后一个订单行预留后追加 OrderStockReserved。
func (o *Order) RecordReservation(productID string) error {
	if o.Status == StatusCancelled {
		return errs.Invariantf("order %s is cancelled", o.ID())
	}
	item, ok := o.item(productID)
	if !ok {
		return errs.Invariantf("product %s is not part of order %s", productID, o.ID())
	}
	if o.Reserved[productID] {
		return nil
	}

	err := o.Raise(o.Apply, &contracts.OrderItemReserved{
		Metadata:  event.New(contracts.OrderItemReservedType),
		ProductID: productID,
		Quantity:  item.Quantity,
	})
	if err != nil {
		return err
	}

	if !o.FullyReserved() {
		return nil
	}
	return o.Raise(o.Apply, &contracts.OrderStockReserved{
		Metadata:    event.New(contracts.OrderStockReservedType),
		CustomerID:  o.CustomerID,
		TotalAmount: o.TotalAmount,
	})
}

// FullyReserved 所有订单行都已预留
func (o *Order) FullyReserved() bool {
	for _, it := range o.Items {
		if !o.Reserved[it.ProductID] {
			return false
		}
	}
	return len(o.Items) > 0
}

func (o *Order) item(productID string) (contracts.OrderItem, bool) {
	for _, it := range o.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return contracts.OrderItem{}, false
}

// Apply 实现 aggregate.Aggregate
func (o *Order) Apply(e event.Event) error {
	at := e.Meta().OccurredAt
	switch e := e.(type) {
	case *contracts.OrderCreated:
		o.CustomerID = e.CustomerID
		o.Items = e.Items
		o.TotalAmount = e.TotalAmount
		o.Status = StatusCreated
		o.CreatedAt = at
	case *contracts.OrderItemReserved:
		if o.Reserved == nil {
			o.Reserved = make(map[string]bool)
		}
		o.Reserved[e.ProductID] = true
	case *contracts.OrderStockReserved:
	case *contracts.OrderConfirmed:
		o.Status = StatusConfirmed
		o.ConfirmedAt = &at
	case *contracts.OrderCancelled:
		o.Status = StatusCancelled
		o.CancelReason = e.Reason
		o.CancelledAt = &at
	default:
		return errs.UnknownEventTypef("order: %s", e.Meta().EventType)
	}
	return nil
}
