package contracts

import "github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"

const (
	PaymentInitiatedType event.Type = "PaymentInitiated"
	PaymentProcessedType event.Type = "PaymentProcessed"
	PaymentConfirmedType event.Type = "PaymentConfirmed"
	PaymentFailedType    event.Type = "PaymentFailed"
)

type PaymentInitiated struct {
	event.Metadata
	OrderID       string `json:"orderId"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"paymentMethod"`
	CustomerID    string `json:"customerId"`
}

type PaymentProcessed struct {
	event.Metadata
	OrderID string `json:"orderId"`
	Amount  int64  `json:"amount"`
}

type PaymentConfirmed struct {
	event.Metadata
	OrderID string `json:"orderId"`
	Amount  int64  `json:"amount"`
}

type PaymentFailed struct {
	event.Metadata
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

func registerPayment(r *event.Registry) {
	event.Register[PaymentInitiated](r, PaymentInitiatedType)
	event.Register[PaymentProcessed](r, PaymentProcessedType)
	event.Register[PaymentConfirmed](r, PaymentConfirmedType)
	event.Register[PaymentFailed](r, PaymentFailedType)
}

// PaymentEvents 支付上下文的事件注册表
func PaymentEvents() *event.Registry {
	r := event.NewRegistry()
	registerPayment(r)
	return r
}
