package inventory

import (
	"strconv"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
)

var (
	_ commandbus.Keyed = (*CreateInventory)(nil)
	_ commandbus.Keyed = (*ReserveStock)(nil)
	_ commandbus.Keyed = (*ReleaseStock)(nil)
	_ commandbus.Keyed = (*MoveToInTransit)(nil)
	_ commandbus.Keyed = (*RejectReservation)(nil)
	_ commandbus.Keyed = (*UpdateStock)(nil)
	_ commandbus.Keyed = (*ActivateInventory)(nil)
	_ commandbus.Keyed = (*DeactivateInventory)(nil)
)

const (
	CreateInventoryType     = "CreateInventory"
	ReserveStockType        = "ReserveStock"
	ReleaseStockType        = "ReleaseStock"
	MoveToInTransitType     = "MoveToInTransit"
	UpdateStockType         = "UpdateStock"
	ActivateInventoryType   = "ActivateInventory"
	DeactivateInventoryType = "DeactivateInventory"
	RejectReservationType   = "RejectReservation"
)

type CreateInventory struct {
	commandbus.Metadata
	ProductID     string `json:"productId" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Available     int64  `json:"availableQuantity" validate:"gte=0"`
	MinStockLevel int64  `json:"minStockLevel" validate:"gte=0"`
}

func (*CreateInventory) CommandType() string { return CreateInventoryType }

func (c *CreateInventory) IdempotencyKey() string { return c.ProductID }

// StockCommand 预留、释放、转在途共用的字段
type StockCommand struct {
	commandbus.Metadata
	ProductID string `json:"productId" validate:"required"`
	OrderID   string `json:"orderId" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
}

// IdempotencyKey 同一订单的多个商品共享关联ID
func (c *StockCommand) IdempotencyKey() string { return c.OrderID + "/" + c.ProductID }

type ReserveStock struct{ StockCommand }

func (*ReserveStock) CommandType() string { return ReserveStockType }

type ReleaseStock struct{ StockCommand }

func (*ReleaseStock) CommandType() string { return ReleaseStockType }

type MoveToInTransit struct{ StockCommand }

func (*MoveToInTransit) CommandType() string { return MoveToInTransitType }

// RejectReservation 在库存流上记录预留失败，触发订单补偿
type RejectReservation struct {
	StockCommand
	Reason string `json:"reason"`
}

func (*RejectReservation) CommandType() string { return RejectReservationType }

type UpdateStock struct {
	commandbus.Metadata
	ProductID string `json:"productId" validate:"required"`
	Available int64  `json:"newAvailableQuantity" validate:"gte=0"`
}

func (*UpdateStock) CommandType() string { return UpdateStockType }

// IdempotencyKey 同一关联ID下改到不同数量视为不同的调整
func (c *UpdateStock) IdempotencyKey() string {
	return c.ProductID + "/" + strconv.FormatInt(c.Available, 10)
}

type ActivateInventory struct {
	commandbus.Metadata
	ProductID string `json:"productId" validate:"required"`
}

func (*ActivateInventory) CommandType() string { return ActivateInventoryType }

func (c *ActivateInventory) IdempotencyKey() string { return c.ProductID }

type DeactivateInventory struct {
	commandbus.Metadata
	ProductID string `json:"productId" validate:"required"`
}

func (*DeactivateInventory) CommandType() string { return DeactivateInventoryType }

func (c *DeactivateInventory) IdempotencyKey() string { return c.ProductID }

// stock 构造共用字段
func stock(meta commandbus.Metadata, productID, orderID string, qty int64) StockCommand {
	return StockCommand{Metadata: meta, ProductID: productID, OrderID: orderID, Quantity: qty}
}
