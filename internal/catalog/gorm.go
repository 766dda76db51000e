package catalog

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRepository products 表
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Product{})
}

// Save 插入或更新商品
func (r *GormRepository) Save(ctx context.Context, products ...Product) error {
	if len(products) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&products).Error
}

func (r *GormRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&Product{}).Where("is_active = ?", true)
}

func (r *GormRepository) FindByID(ctx context.Context, id string) (*Product, error) {
	var products []Product
	if err := r.active(ctx).Where("id = ?", id).Limit(1).Find(&products).Error; err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	return &products[0], nil
}

func (r *GormRepository) FindByIDs(ctx context.Context, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []Product
	err := r.active(ctx).Where("id IN ?", ids).Order("id").Find(&products).Error
	return products, err
}

func (r *GormRepository) FindByCategory(ctx context.Context, category string) ([]Product, error) {
	var products []Product
	err := r.active(ctx).Where("category = ?", category).Order("name").Find(&products).Error
	return products, err
}

func (r *GormRepository) FindActive(ctx context.Context) ([]Product, error) {
	var products []Product
	err := r.active(ctx).Order("category").Order("name").Find(&products).Error
	return products, err
}
