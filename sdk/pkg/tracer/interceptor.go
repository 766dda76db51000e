package tracer

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
)

// Interceptor gin 中间件：请求开始发 pending，结束时发 completed 或 failed
// 需挂在 logger.SetRequestLogger 之后，以便取得关联ID
func Interceptor(t *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if t == nil {
			c.Next()
			return
		}
		start := time.Now()
		correlationID := logger.RequestID(c.Request.Context())
		if correlationID == "" {
			correlationID = c.GetHeader(string(logger.TrafficKey))
		}
		details := map[string]interface{}{
			"method": c.Request.Method,
			"url":    c.Request.URL.String(),
		}

		t.Publish(c.Request.Context(), Trace{
			CorrelationID: correlationID,
			Action:        "Request",
			Status:        StatusPending,
			Details:       details,
		})

		c.Next()

		status := StatusCompleted
		if c.Writer.Status() >= http.StatusBadRequest || len(c.Errors) > 0 {
			status = StatusFailed
		}
		done := map[string]interface{}{
			"method":     c.Request.Method,
			"url":        c.Request.URL.String(),
			"statusCode": c.Writer.Status(),
		}
		if len(c.Errors) > 0 {
			done["error"] = c.Errors.String()
		}
		t.Publish(c.Request.Context(), Trace{
			CorrelationID: correlationID,
			Action:        "Response",
			Status:        status,
			DurationMs:    time.Since(start).Milliseconds(),
			OrderID:       c.GetString(OrderIDKey),
			Details:       done,
		})
	}
}

// OrderIDKey 处理器可以把订单ID写入 gin 上下文，随响应追踪发出
const OrderIDKey = "tracer.orderId"
