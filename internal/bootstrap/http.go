package bootstrap

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	ginmiddleware "github.com/slok/go-http-metrics/middleware/gin"
	"go.uber.org/atomic"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/response"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/tracer"
)

// engine 路由：请求级 logger、追踪拦截、HTTP 指标，加上 /health 与 /metrics
func (in *infra) engine(routes func(gin.IRouter)) *gin.Engine {
	switch in.cfg.Application.Mode {
	case "prod", "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	recorder := metricsprom.NewRecorder(metricsprom.Config{Registry: in.registry})
	mdlw := middleware.New(middleware.Config{Recorder: recorder, Service: in.cfg.Application.Name})

	r := gin.New()
	r.Use(gin.Recovery(), logger.SetRequestLogger)

	ready := atomic.NewBool(false)
	in.app.OnStart("ready", func(ctx context.Context) error {
		ready.Store(true)
		return nil
	})
	in.app.OnStop("ready", func(ctx context.Context) error {
		ready.Store(false)
		return nil
	})
	r.GET("/health", func(c *gin.Context) {
		if !ready.Load() {
			response.Error(c, http.StatusServiceUnavailable, nil, "starting")
			return
		}
		if err := in.bus.HealthCheck(c.Request.Context()); err != nil {
			response.Error(c, http.StatusServiceUnavailable, err, "event bus unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok", "service": in.cfg.Application.Name}, "")
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler(in.registry)))

	api := r.Group("", ginmiddleware.Handler("", mdlw), tracer.Interceptor(in.tracer))
	routes(api)
	return r
}
