// Package catalog 商品目录：下单时校验商品并取目录价
package catalog

import (
	"context"
	"time"
)

// Product 商品，Price 为最小货币单位
type Product struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	Name        string    `json:"name" gorm:"size:128;not null"`
	Description string    `json:"description" gorm:"size:512"`
	Price       int64     `json:"price" gorm:"not null"`
	Category    string    `json:"category" gorm:"size:64;index"`
	IsActive    bool      `json:"isActive" gorm:"index"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Product) TableName() string {
	return "products"
}

// Repository 商品目录查询，只返回上架商品
type Repository interface {
	// FindByID 不存在或已下架时返回 nil, nil
	FindByID(ctx context.Context, id string) (*Product, error)
	// FindByIDs 忽略不存在或已下架的 id
	FindByIDs(ctx context.Context, ids []string) ([]Product, error)
	FindByCategory(ctx context.Context, category string) ([]Product, error)
	FindActive(ctx context.Context) ([]Product, error)
}
