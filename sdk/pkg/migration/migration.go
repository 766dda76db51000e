package migration

import (
	"time"

	"gorm.io/gorm"
)

// Func 迁移函数签名
type Func func(tx *gorm.DB) error

// Migration 迁移版本记录表
type Migration struct {
	Version   string    `gorm:"primaryKey;size:64"`
	ApplyTime time.Time `gorm:"autoCreateTime"`
}

func (Migration) TableName() string {
	return "sys_migration"
}

// AutoMigrate 返回对给定模型执行 AutoMigrate 的迁移函数
func AutoMigrate(models ...interface{}) Func {
	return func(tx *gorm.DB) error {
		return tx.AutoMigrate(models...)
	}
}
