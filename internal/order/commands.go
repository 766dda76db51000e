package order

import "github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"

var (
	_ commandbus.Keyed = (*CreateOrder)(nil)
	_ commandbus.Keyed = (*ConfirmOrder)(nil)
	_ commandbus.Keyed = (*CancelOrder)(nil)
	_ commandbus.Keyed = (*RecordReservation)(nil)
)

const (
	CreateOrderType       = "CreateOrder"
	ConfirmOrderType      = "ConfirmOrder"
	CancelOrderType       = "CancelOrder"
	RecordReservationType = "RecordReservation"
)

// ItemRequest 下单请求中的订单行，价格由目录决定
type ItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
}

type CreateOrder struct {
	commandbus.Metadata
	OrderID    string        `json:"orderId" validate:"required"`
	CustomerID string        `json:"customerId" validate:"required"`
	Items      []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (*CreateOrder) CommandType() string { return CreateOrderType }

// IdempotencyKey 调用方可以为多个订单复用同一关联ID
func (c *CreateOrder) IdempotencyKey() string { return c.OrderID }

type ConfirmOrder struct {
	commandbus.Metadata
	OrderID string `json:"orderId" validate:"required"`
}

func (*ConfirmOrder) CommandType() string { return ConfirmOrderType }

func (c *ConfirmOrder) IdempotencyKey() string { return c.OrderID }

type CancelOrder struct {
	commandbus.Metadata
	OrderID string `json:"orderId" validate:"required"`
	Reason  string `json:"reason"`
}

func (*CancelOrder) CommandType() string { return CancelOrderType }

func (c *CancelOrder) IdempotencyKey() string { return c.OrderID }

// RecordReservation 库存服务已为某个订单行预留库存
type RecordReservation struct {
	commandbus.Metadata
	OrderID   string `json:"orderId" validate:"required"`
	ProductID string `json:"productId" validate:"required"`
	Quantity  int64  `json:"quantity"`
}

func (*RecordReservation) CommandType() string { return RecordReservationType }

// IdempotencyKey 一个订单的多个订单行共享关联ID
func (c *RecordReservation) IdempotencyKey() string { return c.OrderID + "/" + c.ProductID }
