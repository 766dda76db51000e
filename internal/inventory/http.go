package inventory

import (
	"github.com/gin-gonic/gin"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/tracer"
	"github.com/ChenBigdata421/jxt-saga/sdk/restapi"
)

// API 库存 HTTP 接口
type API struct {
	restapi.RestApi
	bus  *commandbus.Bus
	repo *Repository
}

func NewAPI(bus *commandbus.Bus, repo *Repository) *API {
	return &API{bus: bus, repo: repo}
}

func (a *API) Routes(r gin.IRouter) {
	g := r.Group("/inventory")
	g.POST("", a.Create)
	g.GET("", a.List)
	g.GET("/:productId", a.Get)

	g.POST("/:productId/reserve", a.Reserve)
	g.POST("/:productId/release", a.Release)
	g.POST("/:productId/in-transit", a.MoveToInTransit)
	g.PUT("/:productId/stock", a.UpdateStock)
	g.PUT("/:productId/activate", a.Activate)
	g.PUT("/:productId/deactivate", a.Deactivate)
}

func (a *API) Create(c *gin.Context) {
	var cmd CreateInventory
	if err := a.Bind(c, &cmd); err != nil {
		a.Error(c, err)
		return
	}
	cmd.Metadata = commandbus.NewMetadata(a.CorrelationID(c), "")
	a.execute(c, &cmd, gin.H{"productId": cmd.ProductID}, "inventory created")
}

type stockRequest struct {
	ProductID string `json:"productId"`
	OrderID   string `json:"orderId"`
	Quantity  int64  `json:"quantity"`
}

func (a *API) stockCommand(c *gin.Context) (StockCommand, bool) {
	var req stockRequest
	if err := a.Bind(c, &req); err != nil {
		a.Error(c, err)
		return StockCommand{}, false
	}
	if id := c.Param("productId"); id != "" {
		req.ProductID = id
	}
	c.Set(tracer.OrderIDKey, req.OrderID)
	return stock(commandbus.NewMetadata(a.CorrelationID(c), ""), req.ProductID, req.OrderID, req.Quantity), true
}

func (a *API) Reserve(c *gin.Context) {
	if sc, ok := a.stockCommand(c); ok {
		a.execute(c, &ReserveStock{StockCommand: sc}, gin.H{"productId": sc.ProductID, "orderId": sc.OrderID}, "stock reserved")
	}
}

func (a *API) Release(c *gin.Context) {
	if sc, ok := a.stockCommand(c); ok {
		a.execute(c, &ReleaseStock{StockCommand: sc}, gin.H{"productId": sc.ProductID, "orderId": sc.OrderID}, "stock released")
	}
}

func (a *API) MoveToInTransit(c *gin.Context) {
	if sc, ok := a.stockCommand(c); ok {
		a.execute(c, &MoveToInTransit{StockCommand: sc}, gin.H{"productId": sc.ProductID, "orderId": sc.OrderID}, "stock moved to in-transit")
	}
}

func (a *API) UpdateStock(c *gin.Context) {
	var cmd UpdateStock
	if err := a.Bind(c, &cmd); err != nil {
		a.Error(c, err)
		return
	}
	if id := c.Param("productId"); id != "" {
		cmd.ProductID = id
	}
	cmd.Metadata = commandbus.NewMetadata(a.CorrelationID(c), "")
	a.execute(c, &cmd, gin.H{"productId": cmd.ProductID}, "stock updated")
}

func (a *API) Activate(c *gin.Context) {
	cmd := &ActivateInventory{Metadata: commandbus.NewMetadata(a.CorrelationID(c), ""), ProductID: c.Param("productId")}
	a.execute(c, cmd, gin.H{"productId": cmd.ProductID}, "inventory activated")
}

func (a *API) Deactivate(c *gin.Context) {
	cmd := &DeactivateInventory{Metadata: commandbus.NewMetadata(a.CorrelationID(c), ""), ProductID: c.Param("productId")}
	a.execute(c, cmd, gin.H{"productId": cmd.ProductID}, "inventory deactivated")
}

func (a *API) execute(c *gin.Context, cmd commandbus.Command, data gin.H, msg string) {
	if err := a.bus.Execute(c.Request.Context(), cmd); err != nil {
		a.Error(c, err)
		return
	}
	data["correlationId"] = cmd.Meta().CorrelationID
	a.Accepted(c, data, msg)
}

func (a *API) Get(c *gin.Context) {
	id := c.Param("productId")
	inv, found, err := a.repo.FindByProductID(c.Request.Context(), id)
	if err != nil {
		a.Error(c, err)
		return
	}
	if !found {
		a.Error(c, errs.NotFoundf("inventory for product %s", id))
		return
	}
	a.OK(c, view(inv), "")
}

// List 过滤参数：category、active=true、lowStock=true
func (a *API) List(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		items []*Inventory
		err   error
	)
	switch {
	case c.Query("lowStock") == "true":
		items, err = a.repo.FindLowStock(ctx)
	case c.Query("active") == "true":
		items, err = a.repo.FindActive(ctx)
	case c.Query("category") != "":
		items, err = a.repo.FindByCategory(ctx, c.Query("category"))
	default:
		items, err = a.repo.find(ctx, nil)
	}
	if err != nil {
		a.Error(c, err)
		return
	}
	out := make([]gin.H, 0, len(items))
	for _, inv := range items {
		out = append(out, view(inv))
	}
	a.OK(c, out, "")
}

func view(inv *Inventory) gin.H {
	return gin.H{
		"productId":         inv.ProductID,
		"name":              inv.Name,
		"description":       inv.Description,
		"category":          inv.Category,
		"availableQuantity": inv.Available,
		"reservedQuantity":  inv.Reserved,
		"inTransitQuantity": inv.InTransit,
		"totalQuantity":     inv.TotalQuantity(),
		"minStockLevel":     inv.MinStockLevel,
		"isActive":          inv.IsActive,
		"isLowStock":        inv.IsLowStock(),
		"reservations":      inv.Reservations,
		"updatedAt":         inv.UpdatedAt,
		"version":           inv.Version(),
	}
}
