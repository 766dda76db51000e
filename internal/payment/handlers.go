package payment

import (
	"context"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/internal/saga"
	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/service"
)

// Handlers 支付命令处理器
type Handlers struct {
	service.Service
	repo    *Repository
	gateway Gateway
	cfg     config.PaymentConfig
}

func NewHandlers(repo *Repository, gateway Gateway, cfg config.PaymentConfig, svc service.Service) *Handlers {
	cfg.SetDefaults()
	return &Handlers{Service: svc, repo: repo, gateway: gateway, cfg: cfg}
}

func (h *Handlers) Register(bus *commandbus.Bus) {
	commandbus.Handle(bus, ProcessPaymentType, h.ProcessPayment)
	commandbus.Handle(bus, CancelPaymentType, h.CancelPayment)
}

// ProcessPayment 创建支付并交给网关，结论在同一次保存中落为 PaymentConfirmed 或 PaymentFailed
func (h *Handlers) ProcessPayment(ctx context.Context, cmd *ProcessPayment) (err error) {
	done := h.Step(ctx, ProcessPaymentType, cmd.OrderID)
	defer func() { done(err) }()

	existing, found, err := h.repo.FindByOrderID(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if found && existing.Status != StatusFailed {
		return errs.Invariantf("order %s already has payment %s in status %s", cmd.OrderID, existing.ID(), existing.Status)
	}

	id := cmd.PaymentID
	if id == "" {
		id = event.NewID()
	}
	currency, method := cmd.Currency, cmd.PaymentMethod
	if currency == "" {
		currency = h.cfg.Currency
	}
	if method == "" {
		method = h.cfg.Method
	}

	p := New()
	saga.Correlate(p, cmd)
	if err := p.Initiate(id, cmd.OrderID, cmd.Amount, currency, method, cmd.CustomerID); err != nil {
		return err
	}
	if err := p.Process(); err != nil {
		return err
	}

	decision, err := h.gateway.Authorize(ctx, Charge{
		OrderID:    p.OrderID,
		CustomerID: p.CustomerID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Method:     p.PaymentMethod,
	})
	if err != nil {
		return err
	}
	if decision.Approved {
		err = p.Confirm()
	} else {
		h.Logger(ctx).Info("payment declined",
			zap.String("orderId", p.OrderID),
			zap.Int64("amount", p.Amount),
			zap.String("reason", decision.Reason))
		err = p.Fail(decision.Reason)
	}
	if err != nil {
		return err
	}
	return h.repo.Save(ctx, p)
}

// CancelPayment 让订单的支付失败
func (h *Handlers) CancelPayment(ctx context.Context, cmd *CancelPayment) (err error) {
	done := h.Step(ctx, CancelPaymentType, cmd.OrderID)
	defer func() { done(err) }()

	p, found, err := h.repo.FindByOrderID(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if !found {
		return errs.NotFoundf("payment for order %s", cmd.OrderID)
	}
	saga.Correlate(p, cmd)

	reason := cmd.Reason
	if reason == "" {
		reason = "payment cancelled"
	}
	if err := p.Fail(reason); err != nil {
		return err
	}
	return h.repo.Save(ctx, p)
}
