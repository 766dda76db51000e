package idempotency

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name          string
		discriminator string
		want          string
	}{
		{"without discriminator", "", "corr-1:CreateOrder"},
		{"with discriminator", "prod-1", "corr-1:CreateOrder:prod-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key("corr-1", "CreateOrder", tt.discriminator))
		})
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newGormTestStore(t *testing.T) *GormStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return NewGormStore(db)
}

// 所有实现共用的行为
func testStoreContract(t *testing.T, s Store, advance func(d time.Duration)) {
	ctx := context.Background()

	ok, err := s.Claim(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "first claim wins")

	ok, err = s.Claim(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim is a duplicate")

	ok, err = s.Claim(ctx, "k2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	require.NoError(t, s.Release(ctx, "k1"))
	ok, err = s.Claim(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released key can be claimed again")

	require.NoError(t, s.Release(ctx, "missing"))

	if advance != nil {
		advance(2 * time.Minute)
		ok, err = s.Claim(ctx, "k2", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "expired key can be claimed again")
	}
}

func TestMemoryStore(t *testing.T) {
	s, err := NewMemoryStore(100)
	require.NoError(t, err)
	c := &clock{t: time.Now()}
	s.now = c.now

	testStoreContract(t, s, func(d time.Duration) { c.t = c.t.Add(d) })
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(2)
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c"} {
		ok, err := s.Claim(ctx, k, time.Hour)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 2, s.Len())

	ok, _ := s.Claim(ctx, "a", time.Hour)
	assert.True(t, ok, "evicted key is forgotten")
	ok, _ = s.Claim(ctx, "c", time.Hour)
	assert.False(t, ok)
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(10)
	require.NoError(t, err)
	c := &clock{t: time.Now()}
	s.now = c.now

	ok, _ := s.Claim(ctx, "k", 0)
	require.True(t, ok)
	c.t = c.t.Add(365 * 24 * time.Hour)
	ok, _ = s.Claim(ctx, "k", 0)
	assert.False(t, ok)
}

func TestNewMemoryStore_InvalidSize(t *testing.T) {
	_, err := NewMemoryStore(0)
	assert.Error(t, err)
}

func TestGormStore(t *testing.T) {
	s := newGormTestStore(t)
	c := &clock{t: time.Now()}
	s.now = c.now

	testStoreContract(t, s, func(d time.Duration) { c.t = c.t.Add(d) })
}

func TestGormStore_Purge(t *testing.T) {
	ctx := context.Background()
	s := newGormTestStore(t)
	c := &clock{t: time.Now()}
	s.now = c.now

	for _, k := range []string{"a", "b"} {
		_, err := s.Claim(ctx, k, time.Minute)
		require.NoError(t, err)
	}
	_, err := s.Claim(ctx, "c", time.Hour)
	require.NoError(t, err)

	c.t = c.t.Add(10 * time.Minute)
	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

// TestRedisStore 需要 REDIS_ADDR 指向可用的 redis
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	prefix := fmt.Sprintf("idempotency-test-%d:", time.Now().UnixNano())
	testStoreContract(t, NewRedisStore(client, prefix), nil)
}
