package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_NoService(t *testing.T) {
	c := Default()
	assert.Empty(t, c.Application.Name)
	assert.Empty(t, c.Saga.ConsumerGroup)
	assert.EqualError(t, c.Validate(), "service name is required")
}

func TestForService(t *testing.T) {
	c := ForService("order-service")

	assert.Equal(t, EventBusMemory, c.EventBus.Type)
	assert.Equal(t, "order-service", c.EventBus.ServiceName)
	assert.Equal(t, EventStoreBus, c.EventStore.Driver)
	assert.Equal(t, 10, c.EventStore.SnapshotInterval)
	assert.Equal(t, "order-service-group", c.Saga.ConsumerGroup)
	assert.Equal(t, "orders-events", c.Saga.Topics.Orders)
	assert.Equal(t, "payments-events", c.Saga.Topics.Payments)
	assert.Equal(t, "domain-events", c.Saga.Topics.Inventory)
	assert.Equal(t, "aggregate-snapshots", c.Saga.Topics.Snapshots)
	assert.Equal(t, "trace-events", c.Saga.Topics.Traces)
	assert.Equal(t, "USD", c.Payment.Currency)
	assert.Equal(t, "credit_card", c.Payment.Method)
	assert.True(t, c.Idempotency.IsEnabled())
	assert.NoError(t, c.Validate())
}

func TestLoad(t *testing.T) {
	for _, k := range []string{"EVENTBUS_TYPE", "KAFKA_BROKERS", "PORT", "SNAPSHOT_INTERVAL", "CONSUMER_GROUP"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")
	yml := `
application:
  name: payment-service
  port: 3002
eventBus:
  type: kafka
  kafka:
    brokers: ["k1:9092"]
  connect:
    initialBackoff: 250ms
eventStore:
  snapshotInterval: 5
payment:
  gateway:
    maxAmount: 1000
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "payment-service", c.Application.Name)
	assert.Equal(t, 3002, c.Application.Port)
	assert.Equal(t, EventBusKafka, c.EventBus.Type)
	assert.Equal(t, "payment-service", c.EventBus.ServiceName)
	assert.Equal(t, []string{"k1:9092"}, c.EventBus.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, c.EventBus.Connect.InitialBackoff)
	assert.Equal(t, 5, c.EventStore.SnapshotInterval)
	assert.Equal(t, "payment-service-group", c.Saga.ConsumerGroup)
	assert.Equal(t, int64(1000), c.Payment.Gateway.MaxAmount)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, c *Config)
		wantErr bool
	}{
		{
			name: "brokers and port",
			env:  map[string]string{"KAFKA_BROKERS": "a:1, b:2", "PORT": "8080", "EVENTBUS_TYPE": "kafka"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, []string{"a:1", "b:2"}, c.EventBus.Kafka.Brokers)
				assert.Equal(t, 8080, c.Application.Port)
				assert.Equal(t, "kafka", c.EventBus.Type)
			},
		},
		{
			name: "snapshot interval and group",
			env:  map[string]string{"SNAPSHOT_INTERVAL": "3", "CONSUMER_GROUP": "g1", "NATS_URL": "nats://n:4222"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 3, c.EventStore.SnapshotInterval)
				assert.Equal(t, "g1", c.Saga.ConsumerGroup)
				assert.Equal(t, []string{"nats://n:4222"}, c.EventBus.NATS.URLs)
			},
		},
		{
			name: "database and redis",
			env:  map[string]string{"DATABASE_URL": "file::memory:", "REDIS_ADDR": "r:6379", "PAYMENT_FAILURE_RATE": "0.25"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "file::memory:", c.Database.Source)
				assert.Equal(t, "r:6379", c.Redis.Addr)
				assert.Equal(t, 0.25, c.Payment.Gateway.FailureRate)
			},
		},
		{
			name:    "invalid port",
			env:     map[string]string{"PORT": "abc"},
			wantErr: true,
		},
		{
			name:    "invalid snapshot interval",
			env:     map[string]string{"SNAPSHOT_INTERVAL": "ten"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ForService("order-service")
			err := c.applyEnv(func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"sql store without database", func(c *Config) { c.EventStore.Driver = EventStoreSQL }, "database source is required"},
		{"unknown store driver", func(c *Config) { c.EventStore.Driver = "mongo" }, "unsupported eventstore driver"},
		{"zero snapshot interval", func(c *Config) { c.EventStore.SnapshotInterval = 0 }, "snapshot interval must be positive"},
		{"redis backend without redis", func(c *Config) { c.Idempotency.Backend = IdempotencyRedis }, "redis addr is required"},
		{"sql backend without database", func(c *Config) { c.Idempotency.Backend = IdempotencySQL }, "database source is required"},
		{"unknown backend", func(c *Config) { c.Idempotency.Backend = "etcd" }, "unsupported idempotency backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ForService("order-service")
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestIdempotencyConfig_Disabled(t *testing.T) {
	off := false
	c := ForService("order-service")
	c.Idempotency.Enabled = &off
	c.Idempotency.Backend = IdempotencyRedis
	assert.NoError(t, c.Validate())
}
