package contracts

import "github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"

const (
	OrderCreatedType       event.Type = "OrderCreated"
	OrderItemReservedType  event.Type = "OrderItemReserved"
	OrderStockReservedType event.Type = "OrderStockReserved"
	OrderConfirmedType     event.Type = "OrderConfirmed"
	OrderCancelledType     event.Type = "OrderCancelled"
)

// OrderItem 订单行，Price 为下单时的目录单价
type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
	Price     int64  `json:"price"`
}

type OrderCreated struct {
	event.Metadata
	CustomerID  string      `json:"customerId"`
	Items       []OrderItem `json:"items"`
	TotalAmount int64       `json:"totalAmount"`
}

// OrderItemReserved 某一订单行的库存已预留
type OrderItemReserved struct {
	event.Metadata
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

// OrderStockReserved 全部订单行已预留，触发支付
type OrderStockReserved struct {
	event.Metadata
	CustomerID  string `json:"customerId"`
	TotalAmount int64  `json:"totalAmount"`
}

type OrderConfirmed struct {
	event.Metadata
	TotalAmount int64 `json:"totalAmount"`
}

type OrderCancelled struct {
	event.Metadata
	Reason string `json:"reason"`
}

func registerOrder(r *event.Registry) {
	event.Register[OrderCreated](r, OrderCreatedType)
	event.Register[OrderItemReserved](r, OrderItemReservedType)
	event.Register[OrderStockReserved](r, OrderStockReservedType)
	event.Register[OrderConfirmed](r, OrderConfirmedType)
	event.Register[OrderCancelled](r, OrderCancelledType)
}

// OrderEvents 订单上下文的事件注册表
func OrderEvents() *event.Registry {
	r := event.NewRegistry()
	registerOrder(r)
	return r
}
