package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Record 幂等键表
type Record struct {
	Key       string    `gorm:"column:idempotency_key;type:varchar(255);primaryKey;comment:幂等键"`
	ClaimedAt time.Time `gorm:"not null;comment:占用时间"`
	ExpiresAt time.Time `gorm:"not null;index:idx_idempotency_expires_at;comment:过期时间"`
}

// TableName 指定表名
func (Record) TableName() string {
	return "idempotency_keys"
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// GormStore 关系库幂等存储，主键冲突表示已被占用，db 需开启 TranslateError
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore 创建 gorm 存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.now().UTC()
	db := s.db.WithContext(ctx)

	// 先清掉该 key 已过期的记录
	if err := db.Where("idempotency_key = ? AND expires_at <= ?", key, now).Delete(&Record{}).Error; err != nil {
		return false, fmt.Errorf("failed to purge idempotency key %s: %w", key, err)
	}

	err := db.Create(&Record{Key: key, ClaimedAt: now, ExpiresAt: now.Add(ttl)}).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return false, nil
	default:
		return false, fmt.Errorf("failed to claim idempotency key %s: %w", key, err)
	}
}

func (s *GormStore) Release(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("idempotency_key = ?", key).Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("failed to release idempotency key %s: %w", key, err)
	}
	return nil
}

// Purge 删除所有过期记录
func (s *GormStore) Purge(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now().UTC()).Delete(&Record{})
	return res.RowsAffected, res.Error
}
