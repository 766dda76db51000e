package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 结果标签
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
)

// Collector 事件溯源与编排链路的 Prometheus 指标
//
// nil *Collector 的所有方法均为空操作，组件可以不配置指标。
type Collector struct {
	eventsAppended   *prometheus.CounterVec
	appendConflicts  prometheus.Counter
	snapshots        *prometheus.CounterVec
	commands         *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	consumerMessages *prometheus.CounterVec
	busMessages      *prometheus.CounterVec
	lowStock         prometheus.Gauge
	outboxRelayed    *prometheus.CounterVec
}

// NewCollector 在 reg 上注册全部指标；reg 为空时使用独立的注册表
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Collector{
		eventsAppended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_appended_total",
				Help:      "Total number of domain events appended to the event store",
			},
			[]string{"stream_type"},
		),
		appendConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "append_conflicts_total",
				Help:      "Total number of appends rejected by the optimistic concurrency check",
			},
		),
		snapshots: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_total",
				Help:      "Total number of aggregate snapshots taken",
			},
			[]string{"stream_type"},
		),
		commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of commands executed by the command bus",
			},
			[]string{"command", "outcome"},
		),
		commandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command handling latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		consumerMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consumer_messages_total",
				Help:      "Total number of upstream events handled by saga consumers",
			},
			[]string{"topic", "event_type", "outcome"},
		),
		busMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_messages_total",
				Help:      "Total number of messages moved through the event bus",
			},
			[]string{"transport", "topic", "direction"},
		),
		lowStock: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "low_stock_products",
				Help:      "Number of active products at or below their minimum stock level at the last scan",
			},
		),
		outboxRelayed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_relayed_total",
				Help:      "Total number of outbox records handed to the event bus",
			},
			[]string{"outcome"},
		),
	}
}

func (c *Collector) EventsAppended(streamType string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.eventsAppended.WithLabelValues(streamType).Add(float64(n))
}

func (c *Collector) AppendConflict() {
	if c == nil {
		return
	}
	c.appendConflicts.Inc()
}

func (c *Collector) SnapshotTaken(streamType string) {
	if c == nil {
		return
	}
	c.snapshots.WithLabelValues(streamType).Inc()
}

// CommandHandled 记录一次命令执行
func (c *Collector) CommandHandled(command, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(command, outcome).Inc()
	c.commandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (c *Collector) ConsumerMessage(topic, eventType, outcome string) {
	if c == nil {
		return
	}
	c.consumerMessages.WithLabelValues(topic, eventType, outcome).Inc()
}

// BusMessage direction 取 "publish" 或 "consume"
func (c *Collector) BusMessage(transport, topic, direction string) {
	if c == nil {
		return
	}
	c.busMessages.WithLabelValues(transport, topic, direction).Inc()
}

// LowStock 最近一次巡检的低库存商品数
func (c *Collector) LowStock(n int) {
	if c == nil {
		return
	}
	c.lowStock.Set(float64(n))
}

// OutboxRelayed outcome: published、failed、max_retry
func (c *Collector) OutboxRelayed(outcome string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.outboxRelayed.WithLabelValues(outcome).Add(float64(n))
}

// Handler /metrics 处理器
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
