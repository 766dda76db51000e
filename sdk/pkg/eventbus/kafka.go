package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
)

// kafkaEventBus 基于 sarama 的 Kafka 事件总线
//
// 发布使用同步生产者，事件以 AggregateID 为 key，同一聚合落在同一分区；
// 每个订阅一个消费组，分区内顺序处理，处理完成（无论成败）后提交位移。
type kafkaEventBus struct {
	cfg     *config.EventBusConfig
	logger  *zap.Logger
	metrics *metrics.Collector

	mu       sync.RWMutex
	sarama   *sarama.Config
	client   sarama.Client
	producer sarama.SyncProducer
	admin    sarama.ClusterAdmin
	cancels  []context.CancelFunc
	closed   bool

	wg sync.WaitGroup
}

// NewKafkaEventBus 创建Kafka事件总线
func NewKafkaEventBus(cfg *config.EventBusConfig, opts ...Option) EventBus {
	o := buildOptions(opts)
	return &kafkaEventBus{
		cfg:     cfg,
		logger:  o.logger.Named("eventbus.kafka"),
		metrics: o.metrics,
	}
}

// configureSarama 配置Sarama
func configureSarama(cfg *config.KafkaConfig, serviceName string) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	if sc.ClientID == "" {
		sc.ClientID = serviceName
	}

	// 生产者配置
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Producer.RequiredAcks)
	sc.Producer.Timeout = cfg.Producer.Timeout
	sc.Producer.Retry.Max = cfg.Producer.RetryMax
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	switch cfg.Producer.Compression {
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		sc.Producer.Compression = sarama.CompressionNone
	}

	// 幂等性配置
	sc.Producer.Idempotent = cfg.Producer.Idempotent
	if cfg.Producer.Idempotent {
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Producer.Retry.Max = 5
		sc.Net.MaxOpenRequests = 1
	}

	// 消费者配置
	sc.Consumer.Group.Session.Timeout = cfg.Consumer.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = cfg.Consumer.HeartbeatInterval
	sc.Consumer.Offsets.AutoCommit.Enable = true
	switch cfg.Consumer.AutoOffsetReset {
	case "latest":
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}

	sc.Version = sarama.V2_6_0_0
	return sc
}

// Connect 建立客户端、生产者与管理客户端
func (k *kafkaEventBus) Connect(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return ErrEventBusClosed
	}
	if k.client != nil {
		return nil
	}

	k.sarama = configureSarama(&k.cfg.Kafka, k.cfg.ServiceName)

	return connectWithBackoff(ctx, k.cfg.Connect, k.logger, TransportKafka, func(ctx context.Context) error {
		client, err := sarama.NewClient(k.cfg.Kafka.Brokers, k.sarama)
		if err != nil {
			return fmt.Errorf("failed to create kafka client: %w", err)
		}

		producer, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			client.Close()
			return fmt.Errorf("failed to create kafka producer: %w", err)
		}

		admin, err := sarama.NewClusterAdminFromClient(client)
		if err != nil {
			producer.Close()
			client.Close()
			return fmt.Errorf("failed to create kafka admin: %w", err)
		}

		k.client, k.producer, k.admin = client, producer, admin
		return nil
	})
}

// Publish 发布原始消息
func (k *kafkaEventBus) Publish(ctx context.Context, topic string, message []byte) error {
	return k.send(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(message),
	})
}

// PublishEnvelope 发布事件，key 为聚合ID，元数据写入消息头
func (k *kafkaEventBus) PublishEnvelope(ctx context.Context, topic string, envelope *Envelope) error {
	if err := envelope.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}

	headers := envelope.Headers()
	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(envelope.AggregateID),
		Value:   sarama.ByteEncoder(envelope.Payload),
		Headers: make([]sarama.RecordHeader, 0, len(headers)),
	}
	for key, value := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
	}

	if err := k.send(msg); err != nil {
		k.logger.Error("Failed to publish envelope message",
			zap.String("topic", topic),
			zap.String("aggregateID", envelope.AggregateID),
			zap.String("eventType", envelope.EventType),
			zap.Int64("eventVersion", envelope.EventVersion),
			zap.Error(err))
		return err
	}
	return nil
}

func (k *kafkaEventBus) send(msg *sarama.ProducerMessage) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return ErrEventBusClosed
	}
	if k.producer == nil {
		return fmt.Errorf("kafka eventbus is not connected")
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	k.metrics.BusMessage(TransportKafka, msg.Topic, "publish")
	k.logger.Debug("Message published successfully",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Subscribe 订阅原始消息
func (k *kafkaEventBus) Subscribe(ctx context.Context, topic string, handler MessageHandler, opts ...SubscribeOption) error {
	return k.subscribe(ctx, topic, &kafkaConsumerHandler{bus: k, topic: topic, raw: handler}, opts)
}

// SubscribeEnvelope 订阅事件
func (k *kafkaEventBus) SubscribeEnvelope(ctx context.Context, topic string, handler EnvelopeHandler, opts ...SubscribeOption) error {
	return k.subscribe(ctx, topic, &kafkaConsumerHandler{bus: k, topic: topic, envelope: handler}, opts)
}

func (k *kafkaEventBus) subscribe(ctx context.Context, topic string, h *kafkaConsumerHandler, opts []SubscribeOption) error {
	o := buildSubscribeOptions(k.cfg.ServiceName, opts)
	h.group = o.Group

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return ErrEventBusClosed
	}
	if k.client == nil {
		return fmt.Errorf("kafka eventbus is not connected")
	}

	k.ensureTopic(topic)

	// 每个消费组使用独立的配置副本，起始位移由订阅选项决定
	sc := *k.sarama
	if o.FromBeginning {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	group, err := sarama.NewConsumerGroup(k.cfg.Kafka.Brokers, o.Group, &sc)
	if err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	k.cancels = append(k.cancels, cancel)

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer group.Close()

		for {
			if err := group.Consume(subCtx, []string{topic}, h); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				k.logger.Error("Consumer group consume error",
					zap.String("topic", topic),
					zap.String("group", o.Group),
					zap.Error(err))
				select {
				case <-subCtx.Done():
					return
				case <-time.After(DefaultConsumeRetryInterval):
				}
			}
			if subCtx.Err() != nil {
				k.logger.Info("Consumer context cancelled", zap.String("topic", topic))
				return
			}
		}
	}()

	k.logger.Info("Subscribed to topic",
		zap.String("topic", topic),
		zap.String("group", o.Group),
		zap.Bool("fromBeginning", o.FromBeginning))
	return nil
}

// ensureTopic 尝试创建 topic，失败时依赖 broker 自动创建
func (k *kafkaEventBus) ensureTopic(topic string) {
	err := k.admin.CreateTopic(topic, &sarama.TopicDetail{NumPartitions: -1, ReplicationFactor: -1}, false)
	if err == nil {
		k.logger.Info("Created kafka topic", zap.String("topic", topic))
		return
	}
	var topicErr *sarama.TopicError
	if errors.As(err, &topicErr) && topicErr.Err == sarama.ErrTopicAlreadyExists {
		return
	}
	k.logger.Warn("Failed to ensure kafka topic", zap.String("topic", topic), zap.Error(err))
}

func (k *kafkaEventBus) HealthCheck(ctx context.Context) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return ErrEventBusClosed
	}
	if k.client == nil || k.client.Closed() {
		return fmt.Errorf("kafka eventbus is not connected")
	}
	if len(k.client.Brokers()) == 0 {
		return fmt.Errorf("no kafka brokers available")
	}
	return nil
}

// Close 停止消费循环并关闭生产者与客户端
func (k *kafkaEventBus) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	for _, cancel := range k.cancels {
		cancel()
	}
	k.mu.Unlock()

	k.wg.Wait()

	var errs []error
	if k.producer != nil {
		if err := k.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close kafka producer: %w", err))
		}
	}
	// 管理客户端关闭时会一并关闭底层客户端
	if k.admin != nil {
		if err := k.admin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close kafka admin: %w", err))
		}
	} else if k.client != nil {
		if err := k.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close kafka client: %w", err))
		}
	}

	k.logger.Info("Kafka eventbus closed")
	return errors.Join(errs...)
}

// kafkaConsumerHandler Kafka消费者处理器
type kafkaConsumerHandler struct {
	bus      *kafkaEventBus
	topic    string
	group    string
	raw      MessageHandler
	envelope EnvelopeHandler
}

func (h *kafkaConsumerHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *kafkaConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 分区内顺序处理，处理失败记录日志后继续
func (h *kafkaConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := h.processMessage(session.Context(), message); err != nil {
				h.bus.logger.Error("Failed to process message",
					zap.String("topic", message.Topic),
					zap.String("group", h.group),
					zap.Int32("partition", message.Partition),
					zap.Int64("offset", message.Offset),
					zap.Error(err))
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *kafkaConsumerHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	h.bus.metrics.BusMessage(TransportKafka, message.Topic, "consume")

	if h.raw != nil {
		return h.raw(ctx, message.Value)
	}

	headers := make(map[string]string, len(message.Headers))
	for _, header := range message.Headers {
		headers[string(header.Key)] = string(header.Value)
	}
	env, err := EnvelopeFromMessage(headers, string(message.Key), message.Value)
	if err != nil {
		return fmt.Errorf("skipping undecodable message: %w", err)
	}
	if !message.Timestamp.IsZero() {
		env.Timestamp = message.Timestamp
	}
	return h.envelope(ctx, env)
}
