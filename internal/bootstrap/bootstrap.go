// Package bootstrap 按配置装配一个服务进程：总线、事件存储、命令总线、上下文模块与 HTTP
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v9"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-saga/internal/catalog"
	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/internal/payment"
	"github.com/ChenBigdata421/jxt-saga/internal/saga"
	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/database"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventstore"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/idempotency"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/migration"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/outbox"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/tracer"
	"github.com/ChenBigdata421/jxt-saga/sdk/runtime"
	"github.com/ChenBigdata421/jxt-saga/sdk/service"
)

// Service 限界上下文
type Service string

const (
	Order     Service = "order"
	Payment   Service = "payment"
	Inventory Service = "inventory"
)

// ParseService 解析服务名，接受 order 与 order-service 两种写法
func ParseService(s string) (Service, error) {
	switch svc := Service(strings.TrimSuffix(s, "-service")); svc {
	case Order, Payment, Inventory:
		return svc, nil
	default:
		return "", fmt.Errorf("unknown service %q", s)
	}
}

func (s Service) defaultName() string {
	return string(s) + "-service"
}

// eventsTopic 服务自己的事件主题
func (s Service) eventsTopic(t config.TopicConfig) string {
	switch s {
	case Order:
		return t.Orders
	case Payment:
		return t.Payments
	default:
		return t.Inventory
	}
}

func (s Service) aggregateType() string {
	switch s {
	case Order:
		return contracts.AggregateOrder
	case Payment:
		return contracts.AggregatePayment
	default:
		return contracts.AggregateInventory
	}
}

// Option 装配选项，用于测试与单进程演示
type Option func(*options)

type options struct {
	logger   *zap.Logger
	bus      eventbus.EventBus
	registry *prometheus.Registry
	catalog  catalog.Repository
	gateway  payment.Gateway
	addr     *string
}

// WithLogger 使用给定 logger，不再按配置创建日志文件
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEventBus 共享外部总线，总线的关闭由调用方负责
func WithEventBus(bus eventbus.EventBus) Option {
	return func(o *options) { o.bus = bus }
}

// WithRegistry 指标注册表，默认每个服务一个新的注册表
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithCatalog 订单服务使用的商品目录
func WithCatalog(r catalog.Repository) Option {
	return func(o *options) { o.catalog = r }
}

// WithGateway 支付服务使用的支付网关
func WithGateway(g payment.Gateway) Option {
	return func(o *options) { o.gateway = g }
}

// WithAddr 覆盖监听地址，空串表示不监听（引擎仍可直接调用）
func WithAddr(addr string) Option {
	return func(o *options) { o.addr = &addr }
}

// infra 各上下文共用的基础设施
type infra struct {
	cfg      *config.Config
	service  Service
	logger   *zap.Logger
	app      *runtime.Application
	bus      eventbus.EventBus
	db       *gorm.DB
	redis    redis.UniversalClient
	store    eventstore.EventStore
	registry *prometheus.Registry
	metrics  *metrics.Collector
	tracer   *tracer.Tracer
	commands *commandbus.Bus
	consumer *saga.Consumer
	opts     options
}

// New 按配置装配服务，返回的 Application 调用 Run 后开始工作
func New(cfg *config.Config, svc Service, opts ...Option) (*runtime.Application, error) {
	if _, err := ParseService(string(svc)); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		cfg = config.ForService(svc.defaultName())
	}
	if cfg.Application.Name == "" {
		cfg.Application.Name = svc.defaultName()
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	in := &infra{cfg: cfg, service: svc, app: runtime.NewConfig(), opts: o}
	in.setupLogger()

	steps := []func() error{
		in.setupMetrics,
		in.setupBus,
		in.setupDatabase,
		in.setupRedis,
		in.setupStore,
		in.setupTracer,
		in.setupCommandBus,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	in.consumer = saga.NewConsumer(in.bus, cfg.Saga.ConsumerGroup, contracts.All(),
		saga.WithLogger(in.logger),
		saga.WithMetrics(in.metrics),
	)

	var (
		routes func(r gin.IRouter)
		err    error
	)
	switch svc {
	case Order:
		routes, err = in.orderModule()
	case Payment:
		routes, err = in.paymentModule()
	case Inventory:
		routes, err = in.inventoryModule()
	default:
		err = fmt.Errorf("unknown service %q", svc)
	}
	if err != nil {
		return nil, err
	}

	in.app.OnStart("consumer", in.consumer.Start)
	in.app.OnStop("consumer", in.consumer.Stop)

	in.app.SetEngine(in.engine(routes))
	in.app.SetAddr(in.listenAddr())
	in.app.SetShutdownTimeout(in.shutdownTimeout())
	in.app.SetConfig("service", string(svc))
	return in.app, nil
}

func (in *infra) setupLogger() {
	l := in.opts.logger
	if l == nil {
		l = logger.Setup(in.cfg.Logger)
	} else {
		logger.Logger = l
	}
	in.logger = l.With(zap.String("service", in.cfg.Application.Name))
	in.app.SetLogger(l)
}

func (in *infra) setupMetrics() error {
	in.registry = in.opts.registry
	if in.registry == nil {
		in.registry = prometheus.NewRegistry()
		in.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	in.metrics = metrics.NewCollector(strings.ReplaceAll(in.cfg.Application.Name, "-", "_"), in.registry)
	return nil
}

func (in *infra) setupBus() error {
	if in.opts.bus != nil {
		in.bus = in.opts.bus
		in.app.SetEventBus(in.bus)
		return nil
	}
	bus, err := eventbus.NewEventBus(in.cfg.EventBus,
		eventbus.WithLogger(in.logger),
		eventbus.WithMetrics(in.metrics),
	)
	if err != nil {
		return err
	}
	in.bus = bus
	in.app.SetEventBus(bus)
	in.app.OnStart("eventbus", bus.Connect)
	in.app.OnStop("eventbus", func(context.Context) error { return bus.Close() })
	return nil
}

// setupDatabase 配置了数据源时打开数据库并按版本建表
func (in *infra) setupDatabase() error {
	if !in.cfg.Database.Enabled() {
		return nil
	}
	db, err := database.Open(in.cfg.Database, in.cfg.Logger.GormLoggerLevel, in.logger)
	if err != nil {
		return err
	}
	in.db = db
	in.app.SetDB(db)

	m := migration.New(in.logger)
	m.Register("20240101000001_event_journal", eventstore.AutoMigrate)
	m.Register("20240101000002_idempotency_keys", idempotency.AutoMigrate)
	if in.service == Order {
		m.Register("20240101000003_products", catalog.AutoMigrate)
	}
	if in.cfg.EventStore.Driver == config.EventStoreSQL && in.cfg.EventStore.Relay {
		m.Register("20240101000004_event_outbox", outbox.AutoMigrate)
	}
	in.app.OnStart("migration", func(ctx context.Context) error {
		return m.Migrate(db.WithContext(ctx))
	})
	in.app.OnStop("database", func(context.Context) error { return database.Close(db) })
	return nil
}

func (in *infra) setupRedis() error {
	if !in.cfg.Redis.Enabled() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     in.cfg.Redis.Addr,
		Password: in.cfg.Redis.Password,
		DB:       in.cfg.Redis.DB,
	})
	in.redis = client
	in.app.SetLocker(runtime.NewLocker(client, in.cfg.Application.Name+":lock:"))
	in.app.OnStart("redis", func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis %s: %w", in.cfg.Redis.Addr, err)
		}
		return nil
	})
	in.app.OnStop("redis", func(context.Context) error { return client.Close() })
	return nil
}

func (in *infra) setupStore() error {
	opts := []eventstore.Option{
		eventstore.WithLogger(in.logger),
		eventstore.WithMetrics(in.metrics),
	}
	topics := in.cfg.Saga.Topics

	switch in.cfg.EventStore.Driver {
	case config.EventStoreSQL:
		if in.db == nil {
			return fmt.Errorf("sql event store requires a database")
		}
		s := eventstore.NewSQLStore(in.db, opts...)
		in.store = s
		in.app.OnStart("eventstore", in.store.Connect)
		in.app.OnStop("eventstore", in.store.Disconnect)
		if !in.cfg.EventStore.Relay {
			in.logger.Warn("sql event store without relay, other services will not see this service's events")
			return nil
		}
		s.WithOutbox(in.service.eventsTopic(topics))
		sched := outbox.NewScheduler(outbox.NewRepository(in.db), in.bus, in.cfg.EventStore.Outbox,
			outbox.WithLogger(in.logger),
			outbox.WithMetrics(in.metrics),
		)
		in.app.OnStart("outbox", sched.Start)
		in.app.OnStop("outbox", sched.Stop)
		return nil
	default:
		in.store = eventstore.NewBusStore(in.bus, eventstore.BusStoreConfig{
			EventsTopic:    in.service.eventsTopic(topics),
			SnapshotsTopic: topics.Snapshots,
			AggregateTypes: []string{in.service.aggregateType()},
		}, opts...)
	}
	in.app.OnStart("eventstore", in.store.Connect)
	in.app.OnStop("eventstore", in.store.Disconnect)
	return nil
}

func (in *infra) setupTracer() error {
	if !in.cfg.Tracer.Enabled {
		return nil
	}
	var sink tracer.Sink
	switch in.cfg.Tracer.Sink {
	case config.TracerSinkKafka:
		brokers := in.cfg.Tracer.Brokers
		if len(brokers) == 0 {
			brokers = in.cfg.EventBus.Kafka.Brokers
		}
		if len(brokers) == 0 {
			return fmt.Errorf("kafka tracer sink requires brokers")
		}
		sink = tracer.NewKafkaSink(brokers, in.cfg.Saga.Topics.Traces)
	default:
		sink = tracer.NewBusSink(in.bus, in.cfg.Saga.Topics.Traces)
	}
	in.tracer = tracer.New(in.cfg.Application.Name, sink, *in.cfg.Tracer, in.logger)
	in.app.OnStop("tracer", func(context.Context) error { return in.tracer.Close() })
	return nil
}

func (in *infra) setupCommandBus() error {
	b := commandbus.New(in.logger)
	b.Use(
		commandbus.Logging(in.logger),
		commandbus.Metrics(in.metrics),
		commandbus.Validation(validator.New()),
	)
	if !in.cfg.Idempotency.IsEnabled() {
		in.commands = b
		return nil
	}

	var store idempotency.Store
	switch in.cfg.Idempotency.Backend {
	case config.IdempotencyRedis:
		store = idempotency.NewRedisStore(in.redis, in.cfg.Application.Name+":idempotency:")
	case config.IdempotencySQL:
		store = idempotency.NewGormStore(in.db)
	default:
		s, err := idempotency.NewMemoryStore(in.cfg.Idempotency.Size)
		if err != nil {
			return err
		}
		store = s
	}
	b.Use(commandbus.Idempotency(store, in.cfg.Idempotency.TTL, in.logger))
	in.commands = b
	return nil
}

// svc 命令处理器与消费反应共用的服务基类
func (in *infra) svc() service.Service {
	return service.Service{Log: in.logger, Tracer: in.tracer}
}

func (in *infra) listenAddr() string {
	if in.opts.addr != nil {
		return *in.opts.addr
	}
	return net.JoinHostPort(in.cfg.Application.Host, strconv.Itoa(in.cfg.Application.Port))
}

// shutdownTimeout HTTP 优雅关闭超时，取写超时，未配置时用默认值
func (in *infra) shutdownTimeout() time.Duration {
	if in.cfg.Application.WriteTimeout > 0 {
		return time.Duration(in.cfg.Application.WriteTimeout) * time.Second
	}
	return 0
}
