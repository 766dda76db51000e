package order

import (
	"github.com/gin-gonic/gin"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/tracer"
	"github.com/ChenBigdata421/jxt-saga/sdk/restapi"
)

// API 订单 HTTP 接口
type API struct {
	restapi.RestApi
	bus  *commandbus.Bus
	repo *Repository
}

func NewAPI(bus *commandbus.Bus, repo *Repository) *API {
	return &API{bus: bus, repo: repo}
}

// Routes 注册路由
func (a *API) Routes(r gin.IRouter) {
	g := r.Group("/orders")
	g.POST("", a.Create)
	g.GET("", a.List)
	g.GET("/:orderId", a.Get)
	g.PUT("/:orderId/confirm", a.Confirm)
	g.PUT("/:orderId/cancel", a.Cancel)
}

type createRequest struct {
	CustomerID string        `json:"customerId"`
	Items      []ItemRequest `json:"items"`
}

// Create 下单，返回 202，后续状态由事件推进
func (a *API) Create(c *gin.Context) {
	var req createRequest
	if err := a.Bind(c, &req); err != nil {
		a.Error(c, err)
		return
	}

	cmd := &CreateOrder{
		Metadata:   commandbus.NewMetadata(a.CorrelationID(c), ""),
		OrderID:    event.NewID(),
		CustomerID: req.CustomerID,
		Items:      req.Items,
	}
	c.Set(tracer.OrderIDKey, cmd.OrderID)
	if err := a.bus.Execute(c.Request.Context(), cmd); err != nil {
		a.Error(c, err)
		return
	}
	a.Accepted(c, gin.H{"orderId": cmd.OrderID, "correlationId": cmd.CorrelationID}, "order created")
}

func (a *API) Get(c *gin.Context) {
	id := c.Param("orderId")
	o, found, err := a.repo.FindByID(c.Request.Context(), id)
	if err != nil {
		a.Error(c, err)
		return
	}
	if !found {
		a.Error(c, errs.NotFoundf("order %s", id))
		return
	}
	a.OK(c, view(o), "")
}

// List 按状态过滤：pending、confirmed，缺省返回全部
func (a *API) List(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		orders []*Order
		err    error
	)
	switch status := c.Query("status"); status {
	case "":
		orders, err = a.repo.FindAll(ctx)
	case "pending", string(StatusCreated):
		orders, err = a.repo.FindPending(ctx)
	case string(StatusConfirmed):
		orders, err = a.repo.FindConfirmed(ctx)
	case string(StatusCancelled):
		orders, err = a.repo.FindByStatus(ctx, StatusCancelled)
	default:
		err = errs.Validationf("unknown status %q", status)
	}
	if err != nil {
		a.Error(c, err)
		return
	}

	out := make([]gin.H, 0, len(orders))
	for _, o := range orders {
		out = append(out, view(o))
	}
	a.OK(c, out, "")
}

func (a *API) Confirm(c *gin.Context) {
	id := c.Param("orderId")
	c.Set(tracer.OrderIDKey, id)
	cmd := &ConfirmOrder{Metadata: commandbus.NewMetadata(a.CorrelationID(c), ""), OrderID: id}
	if err := a.bus.Execute(c.Request.Context(), cmd); err != nil {
		a.Error(c, err)
		return
	}
	a.Accepted(c, gin.H{"orderId": id}, "order confirmed")
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (a *API) Cancel(c *gin.Context) {
	id := c.Param("orderId")
	c.Set(tracer.OrderIDKey, id)

	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := a.Bind(c, &req); err != nil {
			a.Error(c, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	cmd := &CancelOrder{Metadata: commandbus.NewMetadata(a.CorrelationID(c), ""), OrderID: id, Reason: req.Reason}
	if err := a.bus.Execute(c.Request.Context(), cmd); err != nil {
		a.Error(c, err)
		return
	}
	a.Accepted(c, gin.H{"orderId": id}, "order cancelled")
}

func view(o *Order) gin.H {
	return gin.H{
		"id":           o.ID(),
		"customerId":   o.CustomerID,
		"items":        o.Items,
		"totalAmount":  o.TotalAmount,
		"status":       o.Status,
		"reserved":     len(o.Reserved),
		"cancelReason": o.CancelReason,
		"createdAt":    o.CreatedAt,
		"confirmedAt":  o.ConfirmedAt,
		"cancelledAt":  o.CancelledAt,
		"version":      o.Version(),
	}
}
