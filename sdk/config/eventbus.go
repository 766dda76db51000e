package config

import (
	"fmt"
	"time"
)

// 支持的事件总线类型
const (
	EventBusMemory = "memory"
	EventBusKafka  = "kafka"
	EventBusNATS   = "nats"
)

// EventBusConfig 事件总线配置
type EventBusConfig struct {
	Type        string `mapstructure:"type"`        // kafka, nats, memory
	ServiceName string `mapstructure:"serviceName"` // 微服务名称

	Connect ConnectConfig `mapstructure:"connect"` // 连接重试

	Kafka  KafkaConfig  `mapstructure:"kafka"`
	NATS   NATSConfig   `mapstructure:"nats"`
	Memory MemoryConfig `mapstructure:"memory"`
}

// ConnectConfig 连接重试（指数退避）配置
type ConnectConfig struct {
	MaxAttempts    int           `mapstructure:"maxAttempts"`
	InitialBackoff time.Duration `mapstructure:"initialBackoff"`
	MaxBackoff     time.Duration `mapstructure:"maxBackoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers  []string       `mapstructure:"brokers"`  // Kafka集群地址
	ClientID string         `mapstructure:"clientId"` // 客户端ID
	Producer ProducerConfig `mapstructure:"producer"` // 生产者配置
	Consumer ConsumerConfig `mapstructure:"consumer"` // 消费者配置
}

// ProducerConfig 生产者配置
type ProducerConfig struct {
	RequiredAcks int           `mapstructure:"requiredAcks"` // -1 全部副本
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryMax     int           `mapstructure:"retryMax"`
	Compression  string        `mapstructure:"compression"` // none, gzip, snappy, lz4, zstd
	Idempotent   bool          `mapstructure:"idempotent"`
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	SessionTimeout    time.Duration `mapstructure:"sessionTimeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"`
	AutoOffsetReset   string        `mapstructure:"autoOffsetReset"` // earliest, latest
}

// NATSConfig NATS配置
type NATSConfig struct {
	URLs              []string        `mapstructure:"urls"`              // NATS服务器地址
	ClientID          string          `mapstructure:"clientId"`          // 客户端ID
	MaxReconnects     int             `mapstructure:"maxReconnects"`     // 最大重连次数
	ReconnectWait     time.Duration   `mapstructure:"reconnectWait"`     // 重连等待时间
	ConnectionTimeout time.Duration   `mapstructure:"connectionTimeout"` // 连接超时
	JetStream         JetStreamConfig `mapstructure:"jetstream"`
}

// JetStreamConfig JetStream配置，每个 topic 对应一个 stream
type JetStreamConfig struct {
	StreamPrefix    string        `mapstructure:"streamPrefix"`
	Storage         string        `mapstructure:"storage"` // file, memory
	Replicas        int           `mapstructure:"replicas"`
	MaxAge          time.Duration `mapstructure:"maxAge"`
	DuplicateWindow time.Duration `mapstructure:"duplicateWindow"` // Nats-Msg-Id 去重窗口
	AckWait         time.Duration `mapstructure:"ackWait"`
	FetchBatch      int           `mapstructure:"fetchBatch"`
	FetchWait       time.Duration `mapstructure:"fetchWait"`
}

// MemoryConfig Memory配置
type MemoryConfig struct {
	WorkerCount int `mapstructure:"workerCount"` // 按聚合ID路由的 worker 数
	QueueSize   int `mapstructure:"queueSize"`   // 每个 worker 的队列长度
}

// SetDefaults 为EventBusConfig设置默认值
func (c *EventBusConfig) SetDefaults() {
	if c.Connect.MaxAttempts == 0 {
		c.Connect.MaxAttempts = 5
	}
	if c.Connect.InitialBackoff == 0 {
		c.Connect.InitialBackoff = 500 * time.Millisecond
	}
	if c.Connect.MaxBackoff == 0 {
		c.Connect.MaxBackoff = 10 * time.Second
	}
	if c.Connect.Multiplier == 0 {
		c.Connect.Multiplier = 2
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Producer.RequiredAcks == 0 {
		c.Kafka.Producer.RequiredAcks = -1
	}
	if c.Kafka.Producer.Timeout == 0 {
		c.Kafka.Producer.Timeout = 10 * time.Second
	}
	if c.Kafka.Producer.RetryMax == 0 {
		c.Kafka.Producer.RetryMax = 3
	}
	if c.Kafka.Producer.Compression == "" {
		c.Kafka.Producer.Compression = "snappy"
	}
	if c.Kafka.Consumer.SessionTimeout == 0 {
		c.Kafka.Consumer.SessionTimeout = 30 * time.Second
	}
	if c.Kafka.Consumer.HeartbeatInterval == 0 {
		c.Kafka.Consumer.HeartbeatInterval = 3 * time.Second
	}
	if c.Kafka.Consumer.AutoOffsetReset == "" {
		c.Kafka.Consumer.AutoOffsetReset = "earliest"
	}

	// NATS
	if len(c.NATS.URLs) == 0 {
		c.NATS.URLs = []string{"nats://localhost:4222"}
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = 2 * time.Second
	}
	if c.NATS.ConnectionTimeout == 0 {
		c.NATS.ConnectionTimeout = 10 * time.Second
	}
	js := &c.NATS.JetStream
	if js.StreamPrefix == "" {
		js.StreamPrefix = "SAGA"
	}
	if js.Storage == "" {
		js.Storage = "file"
	}
	if js.Replicas == 0 {
		js.Replicas = 1
	}
	if js.DuplicateWindow == 0 {
		js.DuplicateWindow = 2 * time.Minute
	}
	if js.AckWait == 0 {
		js.AckWait = 30 * time.Second
	}
	if js.FetchBatch == 0 {
		js.FetchBatch = 32
	}
	if js.FetchWait == 0 {
		js.FetchWait = time.Second
	}

	// Memory
	if c.Memory.WorkerCount == 0 {
		c.Memory.WorkerCount = 16
	}
	if c.Memory.QueueSize == 0 {
		c.Memory.QueueSize = 1024
	}
}

// Validate 验证EventBusConfig配置
func (c *EventBusConfig) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("eventbus type is required")
	}

	if c.Type != EventBusKafka && c.Type != EventBusNATS && c.Type != EventBusMemory {
		return fmt.Errorf("unsupported eventbus type: %s", c.Type)
	}

	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if c.Connect.MaxAttempts < 1 {
		return fmt.Errorf("connect max attempts must be positive")
	}
	if c.Type == EventBusKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if c.Type == EventBusNATS && len(c.NATS.URLs) == 0 {
		return fmt.Errorf("nats urls are required")
	}
	return nil
}
