package eventbus

import "time"

// ========== Keyed-Worker 池默认配置 ==========

const (
	// DefaultKeyedWorkerCount 默认Worker数量
	DefaultKeyedWorkerCount = 64

	// DefaultKeyedQueueSize 默认每个Worker的队列大小
	DefaultKeyedQueueSize = 256

	// DefaultKeyedWaitTimeout 默认入队等待超时时间，超时后调用方自行重试
	DefaultKeyedWaitTimeout = 200 * time.Millisecond
)

// ========== 消费循环 ==========

const (
	// DefaultConsumeRetryInterval 消费循环出错后的暂停时间
	DefaultConsumeRetryInterval = time.Second

	// DefaultHealthCheckTimeout 健康检查超时时间
	DefaultHealthCheckTimeout = 5 * time.Second
)

// ========== 消息头 ==========

const (
	HeaderEventID       = "X-Event-ID"
	HeaderAggregateID   = "X-Aggregate-ID"
	HeaderEventType     = "X-Event-Type"
	HeaderEventVersion  = "X-Event-Version"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderCausationID   = "X-Causation-ID"
)

// 传输类型，用于日志与指标标签
const (
	TransportMemory = "memory"
	TransportKafka  = "kafka"
	TransportNATS   = "nats"
)
