package inventory

import (
	"context"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/metrics"
)

// LowStockLockKey 多实例部署时巡检任务的分布式锁
const LowStockLockKey = "inventory:low-stock-scan"

// LowStockScan 定时任务：记录低库存商品并更新指标
func LowStockScan(repo *Repository, m *metrics.Collector, l *zap.Logger) func(ctx context.Context) error {
	l = logger.Named(l, "inventory.scan")
	return func(ctx context.Context) error {
		low, err := repo.FindLowStock(ctx)
		if err != nil {
			return err
		}
		m.LowStock(len(low))
		for _, inv := range low {
			l.Warn("low stock",
				zap.String("productId", inv.ProductID),
				zap.String("name", inv.Name),
				zap.Int64("available", inv.Available),
				zap.Int64("minStockLevel", inv.MinStockLevel))
		}
		if len(low) == 0 {
			l.Debug("no products below minimum stock level")
		}
		return nil
	}
}
