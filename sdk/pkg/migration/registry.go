// Package migration 版本化的表结构迁移，已应用版本记录在 sys_migration
package migration

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
)

// Registry 迁移注册表
type Registry struct {
	mu        sync.Mutex
	versions  map[string]Func
	completed map[string]bool // 已完成版本（内存缓存）
	logger    *zap.Logger
}

// New 创建迁移注册表
func New(l *zap.Logger) *Registry {
	return &Registry{
		versions:  make(map[string]Func),
		completed: make(map[string]bool),
		logger:    logger.Named(l, "migration"),
	}
}

// Register 注册迁移版本，版本号按字典序执行
func (r *Registry) Register(version string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.versions[version]; ok {
		r.logger.Warn("replacing migration", zap.String("version", version))
	}
	r.versions[version] = fn
}

// Versions 获取所有已注册版本（排序后）
func (r *Registry) Versions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked()
}

func (r *Registry) sortedLocked() []string {
	versions := make([]string, 0, len(r.versions))
	for v := range r.versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// Migrate 依次执行未应用的版本，每个版本一个事务
func (r *Registry) Migrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("migration: database is not configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := db.AutoMigrate(&Migration{}); err != nil {
		return fmt.Errorf("create sys_migration: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	for _, version := range r.sortedLocked() {
		if r.completed[version] {
			continue
		}
		if applied[version] {
			r.completed[version] = true
			r.logger.Debug("migration already applied", zap.String("version", version))
			continue
		}

		fn := r.versions[version]
		if err := db.Transaction(func(tx *gorm.DB) error {
			if fn != nil {
				if err := fn(tx); err != nil {
					return err
				}
			}
			return tx.Create(&Migration{Version: version}).Error
		}); err != nil {
			return fmt.Errorf("migration %s failed: %w", version, err)
		}

		r.completed[version] = true
		r.logger.Info("migration applied", zap.String("version", version))
	}
	return nil
}

func appliedVersions(db *gorm.DB) (map[string]bool, error) {
	var records []Migration
	if err := db.Find(&records).Error; err != nil {
		return nil, err
	}

	applied := make(map[string]bool, len(records))
	for _, record := range records {
		applied[record.Version] = true
	}
	return applied, nil
}
