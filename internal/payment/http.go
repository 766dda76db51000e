package payment

import (
	"github.com/gin-gonic/gin"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/tracer"
	"github.com/ChenBigdata421/jxt-saga/sdk/restapi"
)

// API 支付 HTTP 接口
type API struct {
	restapi.RestApi
	bus  *commandbus.Bus
	repo *Repository
}

func NewAPI(bus *commandbus.Bus, repo *Repository) *API {
	return &API{bus: bus, repo: repo}
}

func (a *API) Routes(r gin.IRouter) {
	g := r.Group("/payments")
	g.POST("", a.Process)
	g.GET("", a.List)
	g.GET("/:paymentId", a.Get)
	g.GET("/order/:orderId", a.GetByOrder)
	g.PUT("/:orderId/cancel", a.Cancel)
}

type processRequest struct {
	OrderID       string `json:"orderId"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"paymentMethod"`
	CustomerID    string `json:"customerId"`
}

// Process 手工发起支付
func (a *API) Process(c *gin.Context) {
	var req processRequest
	if err := a.Bind(c, &req); err != nil {
		a.Error(c, err)
		return
	}
	c.Set(tracer.OrderIDKey, req.OrderID)

	cmd := &ProcessPayment{
		Metadata:      commandbus.NewMetadata(a.CorrelationID(c), ""),
		PaymentID:     event.NewID(),
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		CustomerID:    req.CustomerID,
	}
	if err := a.bus.Execute(c.Request.Context(), cmd); err != nil {
		a.Error(c, err)
		return
	}
	a.Accepted(c, gin.H{"paymentId": cmd.PaymentID, "correlationId": cmd.CorrelationID}, "payment processed")
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (a *API) Cancel(c *gin.Context) {
	orderID := c.Param("orderId")
	c.Set(tracer.OrderIDKey, orderID)

	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := a.Bind(c, &req); err != nil {
			a.Error(c, err)
			return
		}
	}
	cmd := &CancelPayment{Metadata: commandbus.NewMetadata(a.CorrelationID(c), ""), OrderID: orderID, Reason: req.Reason}
	if err := a.bus.Execute(c.Request.Context(), cmd); err != nil {
		a.Error(c, err)
		return
	}
	a.Accepted(c, gin.H{"orderId": orderID, "correlationId": cmd.CorrelationID}, "payment cancelled")
}

func (a *API) Get(c *gin.Context) {
	id := c.Param("paymentId")
	p, found, err := a.repo.FindByID(c.Request.Context(), id)
	if err != nil {
		a.Error(c, err)
		return
	}
	if !found {
		a.Error(c, errs.NotFoundf("payment %s", id))
		return
	}
	a.OK(c, view(p), "")
}

func (a *API) GetByOrder(c *gin.Context) {
	orderID := c.Param("orderId")
	p, found, err := a.repo.FindByOrderID(c.Request.Context(), orderID)
	if err != nil {
		a.Error(c, err)
		return
	}
	if !found {
		a.Error(c, errs.NotFoundf("payment for order %s", orderID))
		return
	}
	a.OK(c, view(p), "")
}

// List 按状态过滤：pending、processing、confirmed、failed
func (a *API) List(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		payments []*Payment
		err      error
	)
	switch status := Status(c.Query("status")); status {
	case "":
		payments, err = a.repo.FindAll(ctx)
	case StatusPending:
		payments, err = a.repo.FindPending(ctx)
	case StatusConfirmed:
		payments, err = a.repo.FindConfirmed(ctx)
	case StatusFailed:
		payments, err = a.repo.FindFailed(ctx)
	case StatusProcessing:
		payments, err = a.repo.FindByStatus(ctx, status)
	default:
		err = errs.Validationf("unknown status %q", status)
	}
	if err != nil {
		a.Error(c, err)
		return
	}
	out := make([]gin.H, 0, len(payments))
	for _, p := range payments {
		out = append(out, view(p))
	}
	a.OK(c, out, "")
}

func view(p *Payment) gin.H {
	return gin.H{
		"id":            p.ID(),
		"orderId":       p.OrderID,
		"amount":        p.Amount,
		"currency":      p.Currency,
		"paymentMethod": p.PaymentMethod,
		"customerId":    p.CustomerID,
		"status":        p.Status,
		"failureReason": p.FailureReason,
		"createdAt":     p.CreatedAt,
		"processedAt":   p.ProcessedAt,
		"confirmedAt":   p.ConfirmedAt,
		"failedAt":      p.FailedAt,
		"version":       p.Version(),
	}
}
