package eventbus

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
)

// memoryEventBus 内存事件总线实现（用于测试和开发）
//
// 每个 topic 保留完整日志，新消费组可以从头回放；
// 同组订阅者按 key 哈希分摊，组内暂无订阅者时消息暂存到组上，等待下一个加入者。
type memoryEventBus struct {
	cfg          config.MemoryConfig
	defaultGroup string
	logger       *zap.Logger
	metrics      *metrics.Collector

	mu     sync.Mutex
	topics map[string]*memoryTopic
	subs   map[*memorySubscription]struct{}
	closed bool

	connected *atomic.Bool
	wg        sync.WaitGroup
}

type memoryTopic struct {
	log    []memoryMessage
	groups map[string]*memoryGroup
}

type memoryGroup struct {
	members []*memorySubscription
	pending []memoryMessage
}

type memoryMessage struct {
	topic  string
	offset int64
	key    string
	raw    []byte
	env    *Envelope
}

// NewMemoryEventBus 创建内存事件总线
func NewMemoryEventBus(cfg config.MemoryConfig, serviceName string, opts ...Option) EventBus {
	o := buildOptions(opts)
	return &memoryEventBus{
		cfg:          cfg,
		defaultGroup: serviceName,
		logger:       o.logger.Named("eventbus.memory"),
		metrics:      o.metrics,
		topics:       make(map[string]*memoryTopic),
		subs:         make(map[*memorySubscription]struct{}),
		connected:    atomic.NewBool(false),
	}
}

func (m *memoryEventBus) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrEventBusClosed
	}
	m.connected.Store(true)
	return nil
}

// Publish 发布原始消息
func (m *memoryEventBus) Publish(ctx context.Context, topic string, message []byte) error {
	return m.publish(topic, "", message, nil)
}

// PublishEnvelope 发布事件
func (m *memoryEventBus) PublishEnvelope(ctx context.Context, topic string, envelope *Envelope) error {
	if err := envelope.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	env := *envelope
	return m.publish(topic, env.AggregateID, env.Payload, &env)
}

func (m *memoryEventBus) publish(topic, key string, raw []byte, env *Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrEventBusClosed
	}

	t := m.topic(topic)
	msg := memoryMessage{topic: topic, offset: int64(len(t.log)), key: key, raw: raw, env: env}
	t.log = append(t.log, msg)

	for _, g := range t.groups {
		g.route(msg)
	}

	m.metrics.BusMessage(TransportMemory, topic, "publish")
	return nil
}

// Subscribe 订阅原始消息
func (m *memoryEventBus) Subscribe(ctx context.Context, topic string, handler MessageHandler, opts ...SubscribeOption) error {
	return m.subscribe(ctx, topic, handler, nil, opts)
}

// SubscribeEnvelope 订阅事件
func (m *memoryEventBus) SubscribeEnvelope(ctx context.Context, topic string, handler EnvelopeHandler, opts ...SubscribeOption) error {
	return m.subscribe(ctx, topic, nil, handler, opts)
}

func (m *memoryEventBus) subscribe(ctx context.Context, topic string, raw MessageHandler, envHandler EnvelopeHandler, opts []SubscribeOption) error {
	o := buildSubscribeOptions(m.defaultGroup, opts)
	if o.Group == "" {
		return fmt.Errorf("consumer group is required for topic %s", topic)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrEventBusClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &memorySubscription{
		bus:        m,
		topic:      topic,
		group:      o.Group,
		raw:        raw,
		envHandler: envHandler,
		ctx:        subCtx,
		cancel:     cancel,
		notify:     make(chan struct{}, 1),
	}
	if envHandler != nil {
		s.pool = NewKeyedWorkerPool(KeyedWorkerPoolConfig{
			WorkerCount: m.cfg.WorkerCount,
			QueueSize:   m.cfg.QueueSize,
		}, s.handleAggregate)
	}

	t := m.topic(topic)
	g, exists := t.groups[o.Group]
	if !exists {
		g = &memoryGroup{}
		t.groups[o.Group] = g
		if o.FromBeginning {
			g.pending = append(g.pending, t.log...)
		}
	}
	g.members = append(g.members, s)
	if len(g.pending) > 0 {
		pending := g.pending
		g.pending = nil
		for _, msg := range pending {
			g.route(msg)
		}
	}
	m.subs[s] = struct{}{}

	m.wg.Add(1)
	go s.run()

	m.logger.Info("Subscribed to topic",
		zap.String("topic", topic),
		zap.String("group", o.Group),
		zap.Bool("fromBeginning", o.FromBeginning))
	return nil
}

// leave 订阅结束后退出消费组，未处理的消息交还给组
func (m *memoryEventBus) leave(s *memorySubscription, unprocessed []memoryMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.subs, s)
	t, ok := m.topics[s.topic]
	if !ok {
		return
	}
	g, ok := t.groups[s.group]
	if !ok {
		return
	}
	for i, member := range g.members {
		if member == s {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	if m.closed {
		return
	}
	for _, msg := range unprocessed {
		g.route(msg)
	}
}

func (m *memoryEventBus) topic(name string) *memoryTopic {
	t, ok := m.topics[name]
	if !ok {
		t = &memoryTopic{groups: make(map[string]*memoryGroup)}
		m.topics[name] = t
	}
	return t
}

func (m *memoryEventBus) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrEventBusClosed
	}
	return nil
}

// Close 取消全部订阅并等待分发协程退出
func (m *memoryEventBus) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.connected.Store(false)
	for s := range m.subs {
		s.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Memory eventbus closed")
	return nil
}

// route 按 key 哈希选择组内成员，无成员时暂存
func (g *memoryGroup) route(msg memoryMessage) {
	if len(g.members) == 0 {
		g.pending = append(g.pending, msg)
		return
	}
	idx := 0
	if msg.key != "" && len(g.members) > 1 {
		h := fnv.New32a()
		_, _ = h.Write([]byte(msg.key))
		idx = int(h.Sum32() % uint32(len(g.members)))
	}
	g.members[idx].enqueue(msg)
}

// memorySubscription 单个订阅：无界接收队列 + 分发协程（+ Keyed-Worker 池）
type memorySubscription struct {
	bus        *memoryEventBus
	topic      string
	group      string
	raw        MessageHandler
	envHandler EnvelopeHandler
	pool       *KeyedWorkerPool

	ctx    context.Context
	cancel context.CancelFunc

	qmu    sync.Mutex
	queue  []memoryMessage
	notify chan struct{}
}

func (s *memorySubscription) enqueue(msg memoryMessage) {
	s.qmu.Lock()
	s.queue = append(s.queue, msg)
	s.qmu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) drain() []memoryMessage {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	batch := s.queue
	s.queue = nil
	return batch
}

func (s *memorySubscription) run() {
	defer s.bus.wg.Done()
	defer func() {
		if s.pool != nil {
			s.pool.Stop()
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			s.bus.leave(s, s.drain())
			return
		case <-s.notify:
		}

		batch := s.drain()
		for i, msg := range batch {
			if err := s.dispatch(msg); err != nil {
				// 订阅已结束，剩余消息交还给组
				s.bus.leave(s, append(batch[i:], s.drain()...))
				return
			}
		}
	}
}

// dispatch 仅在订阅结束时返回错误，处理失败只记录日志
func (s *memorySubscription) dispatch(msg memoryMessage) error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	s.bus.metrics.BusMessage(TransportMemory, s.topic, "consume")

	if s.raw != nil {
		if err := s.raw(s.ctx, msg.raw); err != nil {
			s.logFailure(msg, err)
		}
		return nil
	}

	env := msg.env
	if env == nil {
		var err error
		env, err = EnvelopeFromMessage(nil, msg.key, msg.raw)
		if err != nil {
			s.bus.logger.Warn("Skipping undecodable message",
				zap.String("topic", s.topic),
				zap.Int64("offset", msg.offset),
				zap.Error(err))
			return nil
		}
	}

	err := s.pool.Submit(s.ctx, &AggregateMessage{
		Topic:       s.topic,
		Offset:      msg.offset,
		Envelope:    env,
		AggregateID: env.AggregateID,
		Context:     s.ctx,
	})
	if err != nil {
		return err
	}
	return nil
}

func (s *memorySubscription) handleAggregate(ctx context.Context, msg *AggregateMessage) error {
	err := s.envHandler(ctx, msg.Envelope)
	if err != nil {
		s.bus.logger.Error("Failed to process message",
			zap.String("topic", msg.Topic),
			zap.String("group", s.group),
			zap.Int64("offset", msg.Offset),
			zap.String("aggregateID", msg.AggregateID),
			zap.String("eventType", msg.Envelope.EventType),
			zap.Error(err))
	}
	return err
}

func (s *memorySubscription) logFailure(msg memoryMessage, err error) {
	s.bus.logger.Error("Failed to process message",
		zap.String("topic", s.topic),
		zap.String("group", s.group),
		zap.Int64("offset", msg.offset),
		zap.Error(err))
}
