package bootstrap

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/internal/catalog"
	"github.com/ChenBigdata421/jxt-saga/internal/inventory"
	"github.com/ChenBigdata421/jxt-saga/internal/order"
	"github.com/ChenBigdata421/jxt-saga/internal/payment"
	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/aggregate"
)

func (in *infra) repositoryOptions() []aggregate.Option {
	return []aggregate.Option{
		aggregate.WithSnapshotInterval(in.cfg.EventStore.SnapshotInterval),
		aggregate.WithLogger(in.logger),
	}
}

// orderModule 订单上下文：商品目录、命令处理、库存与支付事件的反应
func (in *infra) orderModule() (func(gin.IRouter), error) {
	repo := order.NewRepository(in.store, in.repositoryOptions()...)
	products := in.productCatalog()

	order.NewHandlers(repo, products, in.svc()).Register(in.commands)
	order.Subscribe(in.consumer, in.commands, in.cfg.Saga.Topics)
	return order.NewAPI(in.commands, repo).Routes, nil
}

// productCatalog 有数据库时用 products 表并加缓存，否则用内存目录
func (in *infra) productCatalog() catalog.Repository {
	if in.opts.catalog != nil {
		return in.opts.catalog
	}
	seed := seedProducts(in.cfg.Catalog.Products)
	if in.db == nil {
		return catalog.NewMemoryRepository(seed...)
	}

	products := catalog.NewGormRepository(in.db)
	if len(seed) > 0 {
		in.app.OnStart("catalog", func(ctx context.Context) error {
			in.logger.Info("seeding catalog", zap.Int("products", len(seed)))
			return products.Save(ctx, seed...)
		})
	}
	return catalog.NewCachedRepository(products, in.cfg.Catalog.CacheSize, in.cfg.Catalog.CacheTTL)
}

func seedProducts(items []config.CatalogProduct) []catalog.Product {
	out := make([]catalog.Product, 0, len(items))
	for _, p := range items {
		out = append(out, catalog.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Category:    p.Category,
			Price:       p.Price,
			IsActive:    !p.Inactive,
		})
	}
	return out
}

// paymentModule 支付上下文：网关、命令处理、订单事件的反应
func (in *infra) paymentModule() (func(gin.IRouter), error) {
	repo := payment.NewRepository(in.store, in.repositoryOptions()...)
	gateway := in.opts.gateway
	if gateway == nil {
		gateway = payment.NewSimulatedGateway(in.cfg.Payment.Gateway)
	}

	payment.NewHandlers(repo, gateway, *in.cfg.Payment, in.svc()).Register(in.commands)
	payment.Subscribe(in.consumer, in.commands, in.cfg.Saga.Topics)
	return payment.NewAPI(in.commands, repo).Routes, nil
}

// inventoryModule 库存上下文：命令处理、订单事件的反应与低库存巡检
func (in *infra) inventoryModule() (func(gin.IRouter), error) {
	repo := inventory.NewRepository(in.store, in.repositoryOptions()...)

	inventory.NewHandlers(repo, in.svc()).Register(in.commands)
	inventory.Subscribe(in.consumer, in.commands, repo, in.cfg.Saga.Topics)

	if spec := in.cfg.Inventory.LowStockScan; spec != "" {
		scan := inventory.LowStockScan(repo, in.metrics, in.logger)
		if err := in.app.AddJob(spec, inventory.LowStockLockKey, in.cfg.Inventory.ScanLockTTL, scan); err != nil {
			return nil, err
		}
	}
	return inventory.NewAPI(in.commands, repo).Routes, nil
}
