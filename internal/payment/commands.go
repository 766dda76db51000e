package payment

import "github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"

var (
	_ commandbus.Keyed = (*ProcessPayment)(nil)
	_ commandbus.Keyed = (*CancelPayment)(nil)
)

const (
	ProcessPaymentType = "ProcessPayment"
	CancelPaymentType  = "CancelPayment"
)

// ProcessPayment PaymentID 为空时由处理器生成
type ProcessPayment struct {
	commandbus.Metadata
	PaymentID     string `json:"paymentId"`
	OrderID       string `json:"orderId" validate:"required"`
	Amount        int64  `json:"amount" validate:"gt=0"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"paymentMethod"`
	CustomerID    string `json:"customerId"`
}

func (*ProcessPayment) CommandType() string { return ProcessPaymentType }

// IdempotencyKey 一个订单只处理一次支付
func (c *ProcessPayment) IdempotencyKey() string { return c.OrderID }

// CancelPayment 按订单ID让支付失败
type CancelPayment struct {
	commandbus.Metadata
	OrderID string `json:"orderId" validate:"required"`
	Reason  string `json:"reason"`
}

func (*CancelPayment) CommandType() string { return CancelPaymentType }

func (c *CancelPayment) IdempotencyKey() string { return c.OrderID }
