package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config 顶层配置结构
type Config struct {
	Application *Application       `mapstructure:"application"`
	Logger      *Logger            `mapstructure:"logger"`
	EventBus    *EventBusConfig    `mapstructure:"eventBus"`
	EventStore  *EventStoreConfig  `mapstructure:"eventStore"`
	Database    *Database          `mapstructure:"database"`
	Redis       *Redis             `mapstructure:"redis"`
	Idempotency *IdempotencyConfig `mapstructure:"idempotency"`
	Tracer      *TracerConfig      `mapstructure:"tracer"`
	Saga        *SagaConfig        `mapstructure:"saga"`
	Payment     *PaymentConfig     `mapstructure:"payment"`
	Inventory   *InventoryConfig   `mapstructure:"inventory"`
	Catalog     *CatalogConfig     `mapstructure:"catalog"`
}

// AppConfig 进程级配置，Setup 之后可用
var AppConfig = Default()

// Default 返回全部填好默认值的配置（内存总线、总线事件存储、快照间隔 10）
func Default() *Config {
	c := newConfig()
	c.SetDefaults()
	return c
}

// ForService 以服务名补齐默认值，消费组与总线服务名由服务名派生
func ForService(name string) *Config {
	c := newConfig()
	c.Application.Name = name
	c.SetDefaults()
	return c
}

func newConfig() *Config {
	return &Config{
		Application: &Application{},
		Logger:      &Logger{},
		EventBus:    &EventBusConfig{},
		EventStore:  &EventStoreConfig{},
		Database:    &Database{},
		Redis:       &Redis{},
		Idempotency: &IdempotencyConfig{},
		Tracer:      &TracerConfig{},
		Saga:        &SagaConfig{},
		Payment:     &PaymentConfig{},
		Inventory:   &InventoryConfig{},
		Catalog:     &CatalogConfig{},
	}
}

// Setup 读取配置文件并设置 AppConfig
func Setup(configYml string) (*Config, error) {
	c, err := Load(configYml)
	if err != nil {
		return nil, err
	}
	AppConfig = c
	return c, nil
}

// Load 读取 yml 配置，叠加环境变量，补齐默认值并校验
func Load(configYml string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configYml)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	c := newConfig()
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// SetDefaults 为所有子配置补齐默认值
func (c *Config) SetDefaults() {
	c.Application.SetDefaults()
	c.Logger.SetDefaults()
	if c.EventBus.Type == "" {
		c.EventBus.Type = EventBusMemory
	}
	if c.EventBus.ServiceName == "" {
		c.EventBus.ServiceName = c.Application.Name
	}
	c.EventBus.SetDefaults()
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	c.EventStore.SetDefaults()
	c.Idempotency.SetDefaults()
	c.Tracer.SetDefaults()
	c.Saga.SetDefaults(c.Application.Name)
	c.Payment.SetDefaults()
	c.Inventory.SetDefaults()
	c.Catalog.SetDefaults()
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := c.EventBus.Validate(); err != nil {
		return err
	}
	if err := c.EventStore.Validate(); err != nil {
		return err
	}
	if err := c.Idempotency.Validate(c); err != nil {
		return err
	}
	if c.EventStore.Driver == EventStoreSQL && c.Database.Source == "" {
		return fmt.Errorf("database source is required for sql event store")
	}
	return nil
}

// applyEnv 环境变量覆盖，变量名沿用各服务部署时使用的名称
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if s, ok := lookup("EVENTBUS_TYPE"); ok && s != "" {
		c.EventBus.Type = s
	}
	if s, ok := lookup("KAFKA_BROKERS"); ok && s != "" {
		c.EventBus.Kafka.Brokers = splitList(s)
	}
	if s, ok := lookup("NATS_URL"); ok && s != "" {
		c.EventBus.NATS.URLs = splitList(s)
	}
	if s, ok := lookup("DATABASE_URL"); ok && s != "" {
		c.Database.Source = s
	}
	if s, ok := lookup("REDIS_ADDR"); ok && s != "" {
		c.Redis.Addr = s
	}
	if s, ok := lookup("CONSUMER_GROUP"); ok && s != "" {
		c.Saga.ConsumerGroup = s
	}
	if s, ok := lookup("PORT"); ok && s != "" {
		port, err := cast.ToIntE(s)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", s, err)
		}
		c.Application.Port = port
	}
	if s, ok := lookup("SNAPSHOT_INTERVAL"); ok && s != "" {
		interval, err := cast.ToIntE(s)
		if err != nil {
			return fmt.Errorf("invalid SNAPSHOT_INTERVAL %q: %w", s, err)
		}
		c.EventStore.SnapshotInterval = interval
	}
	if s, ok := lookup("PAYMENT_FAILURE_RATE"); ok && s != "" {
		rate, err := cast.ToFloat64E(s)
		if err != nil {
			return fmt.Errorf("invalid PAYMENT_FAILURE_RATE %q: %w", s, err)
		}
		c.Payment.Gateway.FailureRate = rate
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
