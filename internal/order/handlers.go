package order

import (
	"context"

	"github.com/ChenBigdata421/jxt-saga/internal/catalog"
	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/internal/saga"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/service"
)

// Handlers 订单命令处理器
type Handlers struct {
	service.Service
	repo    *Repository
	catalog catalog.Repository
}

func NewHandlers(repo *Repository, products catalog.Repository, svc service.Service) *Handlers {
	return &Handlers{Service: svc, repo: repo, catalog: products}
}

// Register 注册到命令总线
func (h *Handlers) Register(bus *commandbus.Bus) {
	commandbus.Handle(bus, CreateOrderType, h.CreateOrder)
	commandbus.Handle(bus, ConfirmOrderType, h.ConfirmOrder)
	commandbus.Handle(bus, CancelOrderType, h.CancelOrder)
	commandbus.Handle(bus, RecordReservationType, h.RecordReservation)
}

// CreateOrder 校验商品并以目录价创建订单
func (h *Handlers) CreateOrder(ctx context.Context, cmd *CreateOrder) (err error) {
	done := h.Step(ctx, CreateOrderType, cmd.OrderID)
	defer func() { done(err) }()

	ids := make([]string, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := h.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	prices := make(map[string]int64, len(products))
	for _, p := range products {
		prices[p.ID] = p.Price
	}

	items := make([]contracts.OrderItem, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		price, ok := prices[it.ProductID]
		if !ok {
			return errs.Validationf("product %s is not available", it.ProductID)
		}
		items = append(items, contracts.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: price})
	}

	o := New()
	saga.Correlate(o, cmd)
	if err := o.Create(cmd.OrderID, cmd.CustomerID, items); err != nil {
		return err
	}
	return h.save(ctx, o)
}

func (h *Handlers) ConfirmOrder(ctx context.Context, cmd *ConfirmOrder) (err error) {
	done := h.Step(ctx, ConfirmOrderType, cmd.OrderID)
	defer func() { done(err) }()

	return h.mutate(ctx, cmd, cmd.OrderID, func(o *Order) error { return o.Confirm() })
}

func (h *Handlers) CancelOrder(ctx context.Context, cmd *CancelOrder) (err error) {
	done := h.Step(ctx, CancelOrderType, cmd.OrderID)
	defer func() { done(err) }()

	return h.mutate(ctx, cmd, cmd.OrderID, func(o *Order) error { return o.Cancel(cmd.Reason) })
}

func (h *Handlers) RecordReservation(ctx context.Context, cmd *RecordReservation) (err error) {
	done := h.Step(ctx, RecordReservationType, cmd.OrderID)
	defer func() { done(err) }()

	return h.mutate(ctx, cmd, cmd.OrderID, func(o *Order) error { return o.RecordReservation(cmd.ProductID) })
}

// mutate 加载、执行业务方法、保存
func (h *Handlers) mutate(ctx context.Context, cmd commandbus.Command, id string, fn func(*Order) error) error {
	o, found, err := h.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return errs.NotFoundf("order %s", id)
	}
	saga.Correlate(o, cmd)
	if err := fn(o); err != nil {
		return err
	}
	return h.save(ctx, o)
}

func (h *Handlers) save(ctx context.Context, o *Order) error {
	return h.repo.Save(ctx, o)
}
