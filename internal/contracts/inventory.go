package contracts

import "github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"

const (
	InventoryCreatedType       event.Type = "InventoryCreated"
	StockReservedType          event.Type = "StockReserved"
	StockReleasedType          event.Type = "StockReleased"
	StockMovedToInTransitType  event.Type = "StockMovedToInTransit"
	InventoryUpdatedType       event.Type = "InventoryUpdated"
	StockReservationFailedType event.Type = "StockReservationFailed"
	InventoryActivatedType     event.Type = "InventoryActivated"
	InventoryDeactivatedType   event.Type = "InventoryDeactivated"
)

type InventoryCreated struct {
	event.Metadata
	ProductID     string `json:"productId"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Category      string `json:"category"`
	Available     int64  `json:"availableQuantity"`
	MinStockLevel int64  `json:"minStockLevel"`
}

// StockMovement 预留、释放、转在途共用的负载
type StockMovement struct {
	OrderID   string `json:"orderId"`
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type StockReserved struct {
	event.Metadata
	StockMovement
}

type StockReleased struct {
	event.Metadata
	StockMovement
}

type StockMovedToInTransit struct {
	event.Metadata
	StockMovement
}

// InventoryUpdated 每次数量变化后的库存快照
type InventoryUpdated struct {
	event.Metadata
	ProductID string `json:"productId"`
	Available int64  `json:"availableQuantity"`
	Reserved  int64  `json:"reservedQuantity"`
	InTransit int64  `json:"inTransitQuantity"`
}

// StockReservationFailed 预留被拒绝，不改变库存，订单据此取消
type StockReservationFailed struct {
	event.Metadata
	StockMovement
	Available int64  `json:"availableQuantity"`
	Reason    string `json:"reason"`
}

type InventoryActivated struct {
	event.Metadata
	ProductID string `json:"productId"`
}

type InventoryDeactivated struct {
	event.Metadata
	ProductID string `json:"productId"`
}

func registerInventory(r *event.Registry) {
	event.Register[InventoryCreated](r, InventoryCreatedType)
	event.Register[StockReserved](r, StockReservedType)
	event.Register[StockReleased](r, StockReleasedType)
	event.Register[StockMovedToInTransit](r, StockMovedToInTransitType)
	event.Register[InventoryUpdated](r, InventoryUpdatedType)
	event.Register[StockReservationFailed](r, StockReservationFailedType)
	event.Register[InventoryActivated](r, InventoryActivatedType)
	event.Register[InventoryDeactivated](r, InventoryDeactivatedType)
}

// InventoryEvents 库存上下文的事件注册表
func InventoryEvents() *event.Registry {
	r := event.NewRegistry()
	registerInventory(r)
	return r
}
