// Package inventory 库存上下文：库存聚合、订单事件消费、低库存巡检与 HTTP 接口
package inventory

import (
	"fmt"
	"time"

	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/aggregate"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
)

// ErrInactive 停用的库存不能预留
var ErrInactive = fmt.Errorf("%w: inventory is inactive", errs.ErrInvariantViolation)

// Inventory 库存聚合，流ID 即商品ID
//
// 数量守恒：预留、释放、转在途只在 available、reserved、inTransit 之间搬运，
// Reservations 记录每个订单当前仍占用的预留量。
type Inventory struct {
	aggregate.Root

	ProductID     string           `json:"productId"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	Category      string           `json:"category"`
	Available     int64            `json:"availableQuantity"`
	Reserved      int64            `json:"reservedQuantity"`
	InTransit     int64            `json:"inTransitQuantity"`
	MinStockLevel int64            `json:"minStockLevel"`
	IsActive      bool             `json:"isActive"`
	Reservations  map[string]int64 `json:"reservations,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

func New() *Inventory {
	inv := &Inventory{}
	inv.Init(contracts.AggregateInventory, "")
	return inv
}

// Create 建立商品库存，初始为启用状态
func (inv *Inventory) Create(productID, name, description, category string, available, minStockLevel int64) error {
	if inv.Version() != 0 {
		return errs.Invariantf("inventory %s already exists", inv.ID())
	}
	if productID == "" || name == "" {
		return errs.Validationf("product id and name are required")
	}
	if available < 0 || minStockLevel < 0 {
		return errs.Invariantf("quantities cannot be negative: available %d, min stock level %d", available, minStockLevel)
	}

	inv.SetID(productID)
	return inv.Raise(inv.Apply, &contracts.InventoryCreated{
		Metadata:      event.New(contracts.InventoryCreatedType),
		ProductID:     productID,
		Name:          name,
		Description:   description,
		Category:      category,
		Available:     available,
		MinStockLevel: minStockLevel,
	})
}

// Reserve 为订单预留库存：available → reserved
func (inv *Inventory) Reserve(orderID string, qty int64) error {
	if err := inv.checkMovement(orderID, qty); err != nil {
		return err
	}
	if !inv.IsActive {
		return fmt.Errorf("%w: cannot reserve product %s", ErrInactive, inv.ProductID)
	}
	if inv.Available < qty {
		return errs.InsufficientStockf("product %s: available %d, requested %d", inv.ProductID, inv.Available, qty)
	}
	return inv.move(&contracts.StockReserved{
		Metadata:      event.New(contracts.StockReservedType),
		StockMovement: inv.movement(orderID, qty),
	}, inv.Available-qty, inv.Reserved+qty, inv.InTransit)
}

// Release 撤销订单的预留：reserved → available
func (inv *Inventory) Release(orderID string, qty int64) error {
	if err := inv.checkReserved(orderID, qty, "release"); err != nil {
		return err
	}
	return inv.move(&contracts.StockReleased{
		Metadata:      event.New(contracts.StockReleasedType),
		StockMovement: inv.movement(orderID, qty),
	}, inv.Available+qty, inv.Reserved-qty, inv.InTransit)
}

// MoveToInTransit 订单确认后发货：reserved → inTransit
func (inv *Inventory) MoveToInTransit(orderID string, qty int64) error {
	if err := inv.checkReserved(orderID, qty, "move to in-transit"); err != nil {
		return err
	}
	return inv.move(&contracts.StockMovedToInTransit{
		Metadata:      event.New(contracts.StockMovedToInTransitType),
		StockMovement: inv.movement(orderID, qty),
	}, inv.Available, inv.Reserved-qty, inv.InTransit+qty)
}

// UpdateStock 盘点后直接设置可用量
func (inv *Inventory) UpdateStock(available int64) error {
	if inv.Version() == 0 {
		return errs.NotFoundf("inventory %s", inv.ID())
	}
	if available < 0 {
		return errs.Invariantf("stock quantity cannot be negative: %d", available)
	}
	return inv.Raise(inv.Apply, inv.updated(available, inv.Reserved, inv.InTransit))
}

// Activate 已启用时不产生事件
func (inv *Inventory) Activate() error {
	if inv.IsActive {
		return nil
	}
	return inv.Raise(inv.Apply, &contracts.InventoryActivated{
		Metadata:  event.New(contracts.InventoryActivatedType),
		ProductID: inv.ProductID,
	})
}

// Deactivate 已停用时不产生事件
func (inv *Inventory) Deactivate() error {
	if !inv.IsActive {
		return nil
	}
	return inv.Raise(inv.Apply, &contracts.InventoryDeactivated{
		Metadata:  event.New(contracts.InventoryDeactivatedType),
		ProductID: inv.ProductID,
	})
}

// RejectReservation 记录预留失败，不改变任何数量
func (inv *Inventory) RejectReservation(orderID string, qty int64, reason string) error {
	if orderID == "" {
		return errs.Validationf("order id is required")
	}
	return inv.Raise(inv.Apply, &contracts.StockReservationFailed{
		Metadata:      event.New(contracts.StockReservationFailedType),
		StockMovement: inv.movement(orderID, qty),
		Available:     inv.Available,
		Reason:        reason,
	})
}

// IsLowStock 可用量不高于最低库存
func (inv *Inventory) IsLowStock() bool { return inv.Available <= inv.MinStockLevel }

func (inv *Inventory) TotalQuantity() int64 { return inv.Available + inv.Reserved + inv.InTransit }

func (inv *Inventory) HasAvailableStock(qty int64) bool { return inv.IsActive && inv.Available >= qty }

// ReservedFor 订单当前占用的预留量
func (inv *Inventory) ReservedFor(orderID string) int64 { return inv.Reservations[orderID] }

func (inv *Inventory) checkMovement(orderID string, qty int64) error {
	if inv.Version() == 0 {
		return errs.NotFoundf("inventory %s", inv.ID())
	}
	if orderID == "" {
		return errs.Validationf("order id is required")
	}
	if qty <= 0 {
		return errs.Invariantf("quantity must be positive, got %d", qty)
	}
	return nil
}

func (inv *Inventory) checkReserved(orderID string, qty int64, action string) error {
	if err := inv.checkMovement(orderID, qty); err != nil {
		return err
	}
	if inv.Reserved < qty {
		return errs.Invariantf("cannot %s %d of product %s, reserved %d", action, qty, inv.ProductID, inv.Reserved)
	}
	if held := inv.Reservations[orderID]; held < qty {
		return errs.Invariantf("cannot %s %d of product %s for order %s, held %d", action, qty, inv.ProductID, orderID, held)
	}
	return nil
}

func (inv *Inventory) movement(orderID string, qty int64) contracts.StockMovement {
	return contracts.StockMovement{OrderID: orderID, ProductID: inv.ProductID, Quantity: qty}
}

// move 追加搬运事件和随后的库存快照事件
func (inv *Inventory) move(e event.Event, available, reserved, inTransit int64) error {
	if err := inv.Raise(inv.Apply, e); err != nil {
		return err
	}
	return inv.Raise(inv.Apply, inv.updated(available, reserved, inTransit))
}

func (inv *Inventory) updated(available, reserved, inTransit int64) *contracts.InventoryUpdated {
	return &contracts.InventoryUpdated{
		Metadata:  event.New(contracts.InventoryUpdatedType),
		ProductID: inv.ProductID,
		Available: available,
		Reserved:  reserved,
		InTransit: inTransit,
	}
}

// Apply 搬运事件只维护按订单的预留；数量以紧随其后的 InventoryUpdated 为准
func (inv *Inventory) Apply(e event.Event) error {
	inv.UpdatedAt = e.Meta().OccurredAt
	switch e := e.(type) {
	case *contracts.InventoryCreated:
		inv.ProductID = e.ProductID
		inv.Name = e.Name
		inv.Description = e.Description
		inv.Category = e.Category
		inv.Available = e.Available
		inv.MinStockLevel = e.MinStockLevel
		inv.IsActive = true
		inv.CreatedAt = e.OccurredAt
	case *contracts.StockReserved:
		inv.hold(e.OrderID, e.Quantity)
	case *contracts.StockReleased:
		inv.hold(e.OrderID, -e.Quantity)
	case *contracts.StockMovedToInTransit:
		inv.hold(e.OrderID, -e.Quantity)
	case *contracts.InventoryUpdated:
		inv.Available = e.Available
		inv.Reserved = e.Reserved
		inv.InTransit = e.InTransit
	case *contracts.StockReservationFailed:
	case *contracts.InventoryActivated:
		inv.IsActive = true
	case *contracts.InventoryDeactivated:
		inv.IsActive = false
	default:
		return errs.UnknownEventTypef("inventory: %s", e.Meta().EventType)
	}
	return nil
}

func (inv *Inventory) hold(orderID string, delta int64) {
	if inv.Reservations == nil {
		inv.Reservations = make(map[string]int64)
	}
	inv.Reservations[orderID] += delta
	if inv.Reservations[orderID] <= 0 {
		delete(inv.Reservations, orderID)
	}
}
