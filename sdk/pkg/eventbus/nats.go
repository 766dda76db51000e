package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
)

// 单条消息最多投递次数，超过后由 JetStream 丢弃
const natsMaxDeliver = 5

// natsEventBus 基于 JetStream 的事件总线
//
// 每个 topic 一个 stream（subject 即 topic），Nats-Msg-Id 为事件ID用于服务端去重；
// 每个订阅对应一个以消费组命名的 durable pull consumer，
// 拉取的批次按聚合ID分发到 Keyed-Worker 池，处理完成后逐条 ack。
type natsEventBus struct {
	cfg     *config.EventBusConfig
	logger  *zap.Logger
	metrics *metrics.Collector

	mu      sync.RWMutex
	conn    *nats.Conn
	js      nats.JetStreamContext
	cancels []context.CancelFunc
	closed  bool

	streams sync.Map // topic -> stream name
	wg      sync.WaitGroup
}

// NewNATSEventBus 创建NATS JetStream事件总线
func NewNATSEventBus(cfg *config.EventBusConfig, opts ...Option) EventBus {
	o := buildOptions(opts)
	return &natsEventBus{
		cfg:     cfg,
		logger:  o.logger.Named("eventbus.nats"),
		metrics: o.metrics,
	}
}

func buildNATSOptions(cfg *config.NATSConfig, log *zap.Logger) []nats.Option {
	var opts []nats.Option

	if cfg.ClientID != "" {
		opts = append(opts, nats.Name(cfg.ClientID))
	}
	if cfg.MaxReconnects > 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}
	if cfg.ConnectionTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectionTimeout))
	}

	opts = append(opts,
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	return opts
}

// Connect 建立连接并获取 JetStream 上下文
func (n *natsEventBus) Connect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrEventBusClosed
	}
	if n.conn != nil {
		return nil
	}

	url := strings.Join(n.cfg.NATS.URLs, ",")
	return connectWithBackoff(ctx, n.cfg.Connect, n.logger, TransportNATS, func(ctx context.Context) error {
		nc, err := nats.Connect(url, buildNATSOptions(&n.cfg.NATS, n.logger)...)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		js, err := nc.JetStream(nats.PublishAsyncMaxPending(256))
		if err != nil {
			nc.Close()
			return fmt.Errorf("failed to create JetStream context: %w", err)
		}
		n.conn, n.js = nc, js
		return nil
	})
}

func (n *natsEventBus) jetStream() (nats.JetStreamContext, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return nil, ErrEventBusClosed
	}
	if n.js == nil {
		return nil, fmt.Errorf("nats eventbus is not connected")
	}
	return n.js, nil
}

// ensureStream 确保 topic 对应的 stream 存在
func (n *natsEventBus) ensureStream(js nats.JetStreamContext, topic string) (string, error) {
	if name, ok := n.streams.Load(topic); ok {
		return name.(string), nil
	}

	name := n.cfg.NATS.JetStream.StreamPrefix + "_" + sanitizeName(topic)
	if _, err := js.StreamInfo(name); err == nil {
		n.streams.Store(topic, name)
		return name, nil
	}

	jsCfg := n.cfg.NATS.JetStream
	storage := nats.FileStorage
	if jsCfg.Storage == "memory" {
		storage = nats.MemoryStorage
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:       name,
		Subjects:   []string{topic},
		Retention:  nats.LimitsPolicy,
		Storage:    storage,
		Replicas:   jsCfg.Replicas,
		MaxAge:     jsCfg.MaxAge,
		Duplicates: jsCfg.DuplicateWindow,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return "", fmt.Errorf("failed to create stream %s: %w", name, err)
	}

	n.logger.Info("Created JetStream stream for topic", zap.String("stream", name), zap.String("topic", topic))
	n.streams.Store(topic, name)
	return name, nil
}

// Publish 发布原始消息
func (n *natsEventBus) Publish(ctx context.Context, topic string, message []byte) error {
	js, err := n.jetStream()
	if err != nil {
		return err
	}
	if _, err := n.ensureStream(js, topic); err != nil {
		return err
	}
	if _, err := js.Publish(topic, message, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	n.metrics.BusMessage(TransportNATS, topic, "publish")
	return nil
}

// PublishEnvelope 发布事件，事件ID作为 Nats-Msg-Id
func (n *natsEventBus) PublishEnvelope(ctx context.Context, topic string, envelope *Envelope) error {
	if err := envelope.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	js, err := n.jetStream()
	if err != nil {
		return err
	}
	if _, err := n.ensureStream(js, topic); err != nil {
		return err
	}

	msg := nats.NewMsg(topic)
	msg.Data = envelope.Payload
	for key, value := range envelope.Headers() {
		msg.Header.Set(key, value)
	}

	if _, err := js.PublishMsg(msg, nats.MsgId(envelope.EventID), nats.Context(ctx)); err != nil {
		n.logger.Error("Failed to publish envelope message",
			zap.String("topic", topic),
			zap.String("aggregateID", envelope.AggregateID),
			zap.String("eventType", envelope.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to publish envelope message: %w", err)
	}
	n.metrics.BusMessage(TransportNATS, topic, "publish")
	return nil
}

// Subscribe 订阅原始消息
func (n *natsEventBus) Subscribe(ctx context.Context, topic string, handler MessageHandler, opts ...SubscribeOption) error {
	return n.subscribe(ctx, topic, handler, nil, opts)
}

// SubscribeEnvelope 订阅事件
func (n *natsEventBus) SubscribeEnvelope(ctx context.Context, topic string, handler EnvelopeHandler, opts ...SubscribeOption) error {
	return n.subscribe(ctx, topic, nil, handler, opts)
}

func (n *natsEventBus) subscribe(ctx context.Context, topic string, raw MessageHandler, envHandler EnvelopeHandler, opts []SubscribeOption) error {
	o := buildSubscribeOptions(n.cfg.ServiceName, opts)

	js, err := n.jetStream()
	if err != nil {
		return err
	}
	stream, err := n.ensureStream(js, topic)
	if err != nil {
		return err
	}

	deliver := nats.DeliverNew()
	if o.FromBeginning {
		deliver = nats.DeliverAll()
	}
	durable := sanitizeName(o.Group + "_" + topic)
	sub, err := js.PullSubscribe(topic, durable,
		nats.BindStream(stream),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(n.cfg.NATS.JetStream.AckWait),
		nats.MaxDeliver(natsMaxDeliver),
		deliver,
	)
	if err != nil {
		return fmt.Errorf("failed to create pull subscription for topic %s: %w", topic, err)
	}

	var pool *KeyedWorkerPool
	if envHandler != nil {
		pool = NewKeyedWorkerPool(KeyedWorkerPoolConfig{
			WorkerCount: n.cfg.Memory.WorkerCount,
			QueueSize:   n.cfg.Memory.QueueSize,
		}, func(ctx context.Context, msg *AggregateMessage) error {
			return envHandler(ctx, msg.Envelope)
		})
	}

	subCtx, cancel := context.WithCancel(ctx)
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		cancel()
		_ = sub.Unsubscribe()
		if pool != nil {
			pool.Stop()
		}
		return ErrEventBusClosed
	}
	n.cancels = append(n.cancels, cancel)
	n.mu.Unlock()

	n.wg.Add(1)
	go n.pullLoop(subCtx, topic, o.Group, sub, raw, pool)

	n.logger.Info("JetStream subscription created",
		zap.String("topic", topic),
		zap.String("stream", stream),
		zap.String("durable", durable),
		zap.Bool("fromBeginning", o.FromBeginning))
	return nil
}

func (n *natsEventBus) pullLoop(ctx context.Context, topic, group string, sub *nats.Subscription, raw MessageHandler, pool *KeyedWorkerPool) {
	defer n.wg.Done()
	defer func() {
		if pool != nil {
			pool.Stop()
		}
		// durable consumer 保留在服务端，进程重启后继续消费
		_ = sub.Unsubscribe()
	}()

	batch := n.cfg.NATS.JetStream.FetchBatch
	wait := n.cfg.NATS.JetStream.FetchWait

	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := sub.Fetch(batch, nats.MaxWait(wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrBadSubscription) || errors.Is(err, nats.ErrConnectionClosed) {
				n.logger.Debug("Subscription closed, stopping message fetch", zap.String("topic", topic))
				return
			}
			n.logger.Error("Failed to fetch messages", zap.String("topic", topic), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(DefaultConsumeRetryInterval):
			}
			continue
		}

		if raw != nil {
			for _, msg := range msgs {
				n.metrics.BusMessage(TransportNATS, topic, "consume")
				n.settle(msg, raw(ctx, msg.Data), topic, group)
			}
			continue
		}
		n.dispatchBatch(ctx, topic, group, msgs, pool)
	}
}

// dispatchBatch 批次内按聚合ID并行、同聚合顺序处理，全部完成后逐条确认
func (n *natsEventBus) dispatchBatch(ctx context.Context, topic, group string, msgs []*nats.Msg, pool *KeyedWorkerPool) {
	results := make([]chan error, len(msgs))
	for i, msg := range msgs {
		n.metrics.BusMessage(TransportNATS, topic, "consume")

		headers := make(map[string]string, len(msg.Header))
		for key := range msg.Header {
			headers[key] = msg.Header.Get(key)
		}
		env, err := EnvelopeFromMessage(headers, "", msg.Data)
		if err != nil {
			n.logger.Warn("Skipping undecodable message", zap.String("topic", topic), zap.Error(err))
			_ = msg.Term()
			continue
		}

		done := make(chan error, 1)
		if err := pool.Submit(ctx, &AggregateMessage{
			Topic:       topic,
			Envelope:    env,
			AggregateID: env.AggregateID,
			Context:     ctx,
			Done:        done,
		}); err != nil {
			// 未入队的消息不确认，ack 超时后重新投递
			return
		}
		results[i] = done
	}

	for i, done := range results {
		if done == nil {
			continue
		}
		select {
		case err := <-done:
			n.settle(msgs[i], err, topic, group)
		case <-ctx.Done():
			return
		}
	}
}

// settle 可重试错误 nak，其余 ack（失败已记录日志）
func (n *natsEventBus) settle(msg *nats.Msg, err error, topic, group string) {
	if err != nil && errs.Retryable(err) {
		n.logger.Warn("Retryable failure, message will be redelivered",
			zap.String("topic", topic), zap.String("group", group), zap.Error(err))
		_ = msg.Nak()
		return
	}
	if err != nil {
		n.logger.Error("Failed to process message",
			zap.String("topic", topic), zap.String("group", group), zap.Error(err))
	}
	if ackErr := msg.Ack(); ackErr != nil {
		n.logger.Warn("Failed to ack message", zap.String("topic", topic), zap.Error(ackErr))
	}
}

func (n *natsEventBus) HealthCheck(ctx context.Context) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return ErrEventBusClosed
	}
	if n.conn == nil || !n.conn.IsConnected() {
		return fmt.Errorf("nats eventbus is not connected")
	}
	return nil
}

// Close 停止拉取循环并关闭连接
func (n *natsEventBus) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	for _, cancel := range n.cancels {
		cancel()
	}
	n.mu.Unlock()

	n.wg.Wait()

	if n.conn != nil {
		if err := n.conn.Drain(); err != nil {
			n.conn.Close()
		}
	}
	n.logger.Info("NATS eventbus closed")
	return nil
}

// sanitizeName stream / durable 名称不允许 . * > 与空白
func sanitizeName(s string) string {
	r := strings.NewReplacer(".", "_", "*", "wildcard", ">", "all", " ", "_")
	return r.Replace(s)
}
