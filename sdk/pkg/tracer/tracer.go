// Package tracer 关联追踪：把请求与命令处理的进度以 ping 的形式发给外部看板
//
// 追踪是旁路的：发送失败、超过速率或队列满时直接丢弃，从不影响业务处理。
package tracer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/json"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
)

// 追踪状态
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const defaultQueueSize = 1024

// Trace 追踪 ping
type Trace struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	Service       string                 `json:"service"`
	CorrelationID string                 `json:"correlationId"`
	Action        string                 `json:"action"`
	Status        string                 `json:"status"`
	DurationMs    int64                  `json:"durationMs"`
	OrderID       string                 `json:"orderId,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// Sink 追踪输出
type Sink interface {
	Send(ctx context.Context, key string, data []byte) error
	Close() error
}

// Tracer 异步发送追踪，nil *Tracer 的所有方法都是空操作
type Tracer struct {
	service string
	sink    Sink
	limiter *rate.Limiter
	logger  *zap.Logger

	queue   chan Trace
	dropped *atomic.Int64
	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

// New 创建并启动 Tracer
func New(service string, sink Sink, cfg config.TracerConfig, l *zap.Logger) *Tracer {
	cfg.SetDefaults()
	t := &Tracer{
		service: service,
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  logger.Named(l, "tracer"),
		queue:   make(chan Trace, defaultQueueSize),
		dropped: atomic.NewInt64(0),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Publish 发送追踪，不阻塞
func (t *Tracer) Publish(ctx context.Context, tr Trace) {
	if t == nil {
		return
	}
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	if tr.Timestamp.IsZero() {
		tr.Timestamp = time.Now().UTC()
	}
	if tr.Service == "" {
		tr.Service = t.service
	}
	if tr.CorrelationID == "" {
		tr.CorrelationID = logger.RequestID(ctx)
	}

	if !t.limiter.Allow() {
		t.dropped.Inc()
		return
	}

	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- tr:
	default:
		t.dropped.Inc()
	}
}

// Dropped 被限流或队列满丢弃的数量
func (t *Tracer) Dropped() int64 {
	if t == nil {
		return 0
	}
	return t.dropped.Load()
}

func (t *Tracer) run() {
	defer t.wg.Done()
	for tr := range t.queue {
		data, err := json.Marshal(tr)
		if err != nil {
			t.logger.Debug("failed to marshal trace", zap.Error(err))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := t.sink.Send(ctx, tr.CorrelationID, data); err != nil {
			t.logger.Debug("failed to send trace",
				zap.String("correlationId", tr.CorrelationID),
				zap.String("action", tr.Action),
				zap.Error(err))
		}
		cancel()
	}
}

// Close 发送完队列中的追踪后关闭 sink
func (t *Tracer) Close() error {
	if t == nil {
		return nil
	}
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	close(t.queue)
	t.closeMu.Unlock()

	t.wg.Wait()
	return t.sink.Close()
}
