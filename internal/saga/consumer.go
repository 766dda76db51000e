// Package saga 跨服务事件消费：订阅上游主题，按 eventType 过滤，把事件翻译为本地命令
package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
)

// Reaction 对一个上游事件的反应，通常执行一个或多个本地命令
type Reaction func(ctx context.Context, e event.Event) error

const defaultMaxAttempts = 5

// Consumer 一个服务的跨服务消费者，每个上游主题一个订阅
type Consumer struct {
	bus         eventbus.EventBus
	group       string
	registry    *event.Registry
	logger      *zap.Logger
	metrics     *metrics.Collector
	maxAttempts int

	mu        sync.Mutex
	reactions map[string]map[event.Type]Reaction
	topics    []string
	cancel    context.CancelFunc
}

// Option 消费者选项
type Option func(*Consumer)

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(c *Consumer) { c.logger = l }
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Consumer) { c.metrics = m }
}

// WithMaxAttempts 并发冲突时的本地重试次数
func WithMaxAttempts(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// NewConsumer 创建消费者，registry 需要包含所有订阅的事件类型
func NewConsumer(bus eventbus.EventBus, group string, registry *event.Registry, opts ...Option) *Consumer {
	c := &Consumer{
		bus:         bus,
		group:       group,
		registry:    registry,
		logger:      logger.Logger,
		maxAttempts: defaultMaxAttempts,
		reactions:   make(map[string]map[event.Type]Reaction),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Named(c.logger, "consumer").With(zap.String("group", group))
	return c
}

// On 注册 topic 上 eventType 的反应
func (c *Consumer) On(topic string, t event.Type, fn Reaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byType, ok := c.reactions[topic]
	if !ok {
		byType = make(map[event.Type]Reaction)
		c.reactions[topic] = byType
		c.topics = append(c.topics, topic)
	}
	byType[t] = fn
}

// Topics 已注册的主题
func (c *Consumer) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.topics...)
}

// Start 订阅所有主题，订阅在 Stop 之前一直有效
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	topics := append([]string(nil), c.topics...)
	c.mu.Unlock()

	for _, topic := range topics {
		topic := topic
		err := c.bus.SubscribeEnvelope(subCtx, topic, func(ctx context.Context, env *eventbus.Envelope) error {
			return c.handle(ctx, topic, env)
		}, eventbus.WithGroup(c.group))
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		c.logger.Info("subscribed", zap.String("topic", topic))
	}
	return nil
}

// Stop 停止所有订阅，可重复调用
func (c *Consumer) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Consumer) reaction(topic string, t event.Type) (Reaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn, ok := c.reactions[topic][t]
	return fn, ok
}

// handle 单条消息失败只记录日志；仍可重试的错误返回给传输层以便重新投递
func (c *Consumer) handle(ctx context.Context, topic string, env *eventbus.Envelope) error {
	t := event.Type(env.EventType)
	fn, ok := c.reaction(topic, t)
	if !ok {
		c.metrics.ConsumerMessage(topic, env.EventType, metrics.OutcomeSkipped)
		return nil
	}

	l := c.logger.With(
		zap.String("topic", topic),
		zap.String("eventType", env.EventType),
		zap.String("eventID", env.EventID),
		zap.String("aggregateID", env.AggregateID),
		zap.String("correlationId", env.CorrelationID))

	e, err := c.registry.Decode(env.Payload)
	if err != nil {
		l.Warn("failed to decode event, skipping", zap.Error(err))
		c.metrics.ConsumerMessage(topic, env.EventType, metrics.OutcomeError)
		return nil
	}

	ctx = context.WithValue(ctx, logger.LoggerKey, l)
	ctx = context.WithValue(ctx, logger.TrafficKey, e.Meta().CorrelationID)

	start := time.Now()
	err = c.react(ctx, fn, e)
	if err != nil {
		c.metrics.ConsumerMessage(topic, env.EventType, metrics.OutcomeError)
		l.Warn("reaction failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		if errs.Retryable(err) {
			return err
		}
		return nil
	}
	c.metrics.ConsumerMessage(topic, env.EventType, metrics.OutcomeOK)
	l.Debug("reaction completed", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// react 并发冲突时重新执行反应，命令处理器每次都会重新加载聚合
func (c *Consumer) react(ctx context.Context, fn Reaction, e event.Event) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn(ctx, e)
		if err != nil && !errs.Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(c.maxAttempts)))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}
