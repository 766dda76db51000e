// Package service 应用服务基类，命令处理与事件消费嵌入 Service 复用日志和追踪
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/tracer"
)

type Service struct {
	Log    *zap.Logger
	Tracer *tracer.Tracer
}

// Logger 优先取上下文中的请求级 logger
func (s *Service) Logger(ctx context.Context) *zap.Logger {
	if l := logger.FromContext(ctx); l != logger.Logger {
		return l
	}
	if s.Log != nil {
		return s.Log
	}
	return logger.Logger
}

// Step 发出 pending 追踪，返回的函数按结果发出 completed 或 failed
func (s *Service) Step(ctx context.Context, action, orderID string) func(err error) {
	s.Tracer.Publish(ctx, tracer.Trace{Action: action, Status: tracer.StatusPending, OrderID: orderID})
	start := time.Now()
	return func(err error) {
		tr := tracer.Trace{
			Action:     action,
			Status:     tracer.StatusCompleted,
			OrderID:    orderID,
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			tr.Status = tracer.StatusFailed
			tr.Details = map[string]interface{}{"error": err.Error()}
		}
		s.Tracer.Publish(ctx, tr)
	}
}
