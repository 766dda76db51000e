package inventory

import (
	"context"

	"github.com/ChenBigdata421/jxt-saga/internal/saga"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/service"
)

// Handlers 库存命令处理器
type Handlers struct {
	service.Service
	repo *Repository
}

func NewHandlers(repo *Repository, svc service.Service) *Handlers {
	return &Handlers{Service: svc, repo: repo}
}

func (h *Handlers) Register(bus *commandbus.Bus) {
	commandbus.Handle(bus, CreateInventoryType, h.CreateInventory)
	commandbus.Handle(bus, ReserveStockType, h.ReserveStock)
	commandbus.Handle(bus, ReleaseStockType, h.ReleaseStock)
	commandbus.Handle(bus, MoveToInTransitType, h.MoveToInTransit)
	commandbus.Handle(bus, RejectReservationType, h.RejectReservation)
	commandbus.Handle(bus, UpdateStockType, h.UpdateStock)
	commandbus.Handle(bus, ActivateInventoryType, h.ActivateInventory)
	commandbus.Handle(bus, DeactivateInventoryType, h.DeactivateInventory)
}

func (h *Handlers) CreateInventory(ctx context.Context, cmd *CreateInventory) error {
	_, found, err := h.repo.FindByProductID(ctx, cmd.ProductID)
	if err != nil {
		return err
	}
	if found {
		return errs.Invariantf("inventory for product %s already exists", cmd.ProductID)
	}

	inv := New()
	saga.Correlate(inv, cmd)
	if err := inv.Create(cmd.ProductID, cmd.Name, cmd.Description, cmd.Category, cmd.Available, cmd.MinStockLevel); err != nil {
		return err
	}
	return h.repo.Save(ctx, inv)
}

func (h *Handlers) ReserveStock(ctx context.Context, cmd *ReserveStock) (err error) {
	done := h.Step(ctx, ReserveStockType, cmd.OrderID)
	defer func() { done(err) }()

	return h.mutate(ctx, cmd, cmd.ProductID, func(inv *Inventory) error { return inv.Reserve(cmd.OrderID, cmd.Quantity) })
}

func (h *Handlers) ReleaseStock(ctx context.Context, cmd *ReleaseStock) (err error) {
	done := h.Step(ctx, ReleaseStockType, cmd.OrderID)
	defer func() { done(err) }()

	return h.mutate(ctx, cmd, cmd.ProductID, func(inv *Inventory) error { return inv.Release(cmd.OrderID, cmd.Quantity) })
}

func (h *Handlers) MoveToInTransit(ctx context.Context, cmd *MoveToInTransit) (err error) {
	done := h.Step(ctx, MoveToInTransitType, cmd.OrderID)
	defer func() { done(err) }()

	return h.mutate(ctx, cmd, cmd.ProductID, func(inv *Inventory) error { return inv.MoveToInTransit(cmd.OrderID, cmd.Quantity) })
}

func (h *Handlers) RejectReservation(ctx context.Context, cmd *RejectReservation) (err error) {
	done := h.Step(ctx, RejectReservationType, cmd.OrderID)
	defer func() { done(err) }()

	return h.mutate(ctx, cmd, cmd.ProductID, func(inv *Inventory) error {
		return inv.RejectReservation(cmd.OrderID, cmd.Quantity, cmd.Reason)
	})
}

func (h *Handlers) UpdateStock(ctx context.Context, cmd *UpdateStock) error {
	return h.mutate(ctx, cmd, cmd.ProductID, func(inv *Inventory) error { return inv.UpdateStock(cmd.Available) })
}

func (h *Handlers) ActivateInventory(ctx context.Context, cmd *ActivateInventory) error {
	return h.mutate(ctx, cmd, cmd.ProductID, (*Inventory).Activate)
}

func (h *Handlers) DeactivateInventory(ctx context.Context, cmd *DeactivateInventory) error {
	return h.mutate(ctx, cmd, cmd.ProductID, (*Inventory).Deactivate)
}

func (h *Handlers) mutate(ctx context.Context, cmd commandbus.Command, productID string, fn func(*Inventory) error) error {
	inv, found, err := h.repo.FindByProductID(ctx, productID)
	if err != nil {
		return err
	}
	if !found {
		return errs.NotFoundf("inventory for product %s", productID)
	}
	saga.Correlate(inv, cmd)
	if err := fn(inv); err != nil {
		return err
	}
	return h.repo.Save(ctx, inv)
}
