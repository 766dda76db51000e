// Package payment 支付上下文：支付聚合、模拟网关、订单事件消费与 HTTP 接口
package payment

import (
	"time"

	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/aggregate"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
)

// Status 支付状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
)

const (
	DefaultCurrency = "USD"
	DefaultMethod   = "credit_card"
)

// Payment 支付聚合
//
// 状态机：pending → processing → confirmed，任意未失败状态 → failed。
type Payment struct {
	aggregate.Root

	OrderID       string     `json:"orderId"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	PaymentMethod string     `json:"paymentMethod"`
	CustomerID    string     `json:"customerId,omitempty"`
	Status        Status     `json:"status"`
	FailureReason string     `json:"failureReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmedAt,omitempty"`
	FailedAt      *time.Time `json:"failedAt,omitempty"`
}

func New() *Payment {
	p := &Payment{}
	p.Init(contracts.AggregatePayment, "")
	return p
}

// Initiate 创建 pending 支付，币种与支付方式为空时取默认值
func (p *Payment) Initiate(id, orderID string, amount int64, currency, method, customerID string) error {
	if p.Version() != 0 {
		return errs.Invariantf("payment %s already exists", p.ID())
	}
	if id == "" || orderID == "" {
		return errs.Validationf("payment id and order id are required")
	}
	if amount <= 0 {
		return errs.Invariantf("payment amount must be positive, got %d", amount)
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	if method == "" {
		method = DefaultMethod
	}

	p.SetID(id)
	return p.Raise(p.Apply, &contracts.PaymentInitiated{
		Metadata:      event.New(contracts.PaymentInitiatedType),
		OrderID:       orderID,
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: method,
		CustomerID:    customerID,
	})
}

// Process 提交网关，仅 pending 可以处理
func (p *Payment) Process() error {
	if p.Status != StatusPending {
		return errs.Invariantf("cannot process payment %s in status %s", p.ID(), p.Status)
	}
	return p.Raise(p.Apply, &contracts.PaymentProcessed{
		Metadata: event.New(contracts.PaymentProcessedType),
		OrderID:  p.OrderID,
		Amount:   p.Amount,
	})
}

// Confirm 仅 processing 可以确认
func (p *Payment) Confirm() error {
	if p.Status != StatusProcessing {
		return errs.Invariantf("cannot confirm payment %s in status %s", p.ID(), p.Status)
	}
	return p.Raise(p.Apply, &contracts.PaymentConfirmed{
		Metadata: event.New(contracts.PaymentConfirmedType),
		OrderID:  p.OrderID,
		Amount:   p.Amount,
	})
}

// Fail 已失败的支付不能再次失败
func (p *Payment) Fail(reason string) error {
	if p.Status == StatusFailed {
		return errs.Invariantf("payment %s has already failed", p.ID())
	}
	return p.Raise(p.Apply, &contracts.PaymentFailed{
		Metadata: event.New(contracts.PaymentFailedType),
		OrderID:  p.OrderID,
		Reason:   reason,
	})
}

func (p *Payment) Apply(e event.Event) error {
	at := e.Meta().OccurredAt
	switch e := e.(type) {
	case *contracts.PaymentInitiated:
		p.OrderID = e.OrderID
		p.Amount = e.Amount
		p.Currency = e.Currency
		p.PaymentMethod = e.PaymentMethod
		p.CustomerID = e.CustomerID
		p.Status = StatusPending
		p.CreatedAt = at
	case *contracts.PaymentProcessed:
		p.Status = StatusProcessing
		p.ProcessedAt = &at
	case *contracts.PaymentConfirmed:
		p.Status = StatusConfirmed
		p.ConfirmedAt = &at
	case *contracts.PaymentFailed:
		p.Status = StatusFailed
		p.FailureReason = e.Reason
		p.FailedAt = &at
	default:
		return errs.UnknownEventTypef("payment: %s", e.Meta().EventType)
	}
	return nil
}
