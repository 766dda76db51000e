package outbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
)

// Scheduler 轮询发件箱并转发到总线
//
// 同一聚合的记录按写入顺序转发：某条失败后，本轮跳过该聚合的后续记录。
// 转发成功但标记失败时下一轮会重复转发，下游按 (流, 版本) 与幂等键去重。
type Scheduler struct {
	repo    *Repository
	bus     eventbus.EventBus
	cfg     config.OutboxConfig
	logger  *zap.Logger
	metrics *metrics.Collector

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SchedulerOption 调度器选项
type SchedulerOption func(*Scheduler)

// WithLogger 设置日志
func WithLogger(l *zap.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Collector) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

func NewScheduler(repo *Repository, bus eventbus.EventBus, cfg config.OutboxConfig, opts ...SchedulerOption) *Scheduler {
	cfg.SetDefaults()
	s := &Scheduler{repo: repo, bus: bus, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.Named(s.logger, "outbox")
	return s
}

// Start 启动轮询，重复调用无效果
func (s *Scheduler) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.pollLoop(ctx)
	if s.cfg.CleanupInterval > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(ctx)
	}
	return nil
}

// Stop 停止轮询并等待进行中的一轮结束
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 一批转满说明还有积压，立即再取一批
			for {
				n, err := s.Poll(ctx)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Warn("outbox poll failed", zap.Error(err))
					}
					break
				}
				if n < s.cfg.BatchSize {
					break
				}
			}
		}
	}
}

func (s *Scheduler) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Cleanup(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("outbox cleanup failed", zap.Error(err))
			}
		}
	}
}

// Poll 转发一批待转发记录，返回成功转发的条数
func (s *Scheduler) Poll(ctx context.Context) (int, error) {
	records, err := s.repo.FindPending(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	blocked := make(map[string]bool)
	published := make([]int64, 0, len(records))
	for _, rec := range records {
		if blocked[rec.AggregateID] {
			continue
		}
		if err := s.bus.PublishEnvelope(ctx, rec.Topic, rec.Envelope()); err != nil {
			blocked[rec.AggregateID] = true
			s.fail(ctx, rec, err)
			continue
		}
		published = append(published, rec.ID)
	}

	if err := s.repo.MarkPublished(ctx, published, time.Now().UTC()); err != nil {
		return 0, err
	}
	s.metrics.OutboxRelayed(string(StatusPublished), len(published))
	return len(published), nil
}

func (s *Scheduler) fail(ctx context.Context, rec *Record, cause error) {
	status, err := s.repo.MarkFailed(ctx, rec, cause, s.cfg.MaxRetries)
	if err != nil {
		s.logger.Error("failed to record outbox failure", zap.Int64("id", rec.ID), zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.String("eventId", rec.EventID),
		zap.String("aggregateId", rec.AggregateID),
		zap.Int64("version", rec.EventVersion),
		zap.Int("retry", rec.RetryCount+1),
		zap.Error(cause),
	}
	if status == StatusMaxRetry {
		s.metrics.OutboxRelayed(string(StatusMaxRetry), 1)
		s.logger.Error("outbox record exceeded max retries", fields...)
		return
	}
	s.metrics.OutboxRelayed("failed", 1)
	s.logger.Warn("outbox publish failed", fields...)
}

// Cleanup 删除超过保留期的已转发记录
func (s *Scheduler) Cleanup(ctx context.Context) (int64, error) {
	return s.repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(-s.cfg.Retention))
}
