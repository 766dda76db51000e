package inventory

import (
	"context"
	"sort"

	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/aggregate"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventstore"
)

type Repository struct {
	*aggregate.Repository[*Inventory]
}

func Definition() aggregate.Definition[*Inventory] {
	return aggregate.Definition[*Inventory]{
		AggregateType: contracts.AggregateInventory,
		New:           New,
		Decode:        aggregate.DecodeWith(contracts.InventoryEvents()),
	}
}

func NewRepository(store eventstore.EventStore, opts ...aggregate.Option) *Repository {
	return &Repository{Repository: aggregate.NewRepository(store, Definition(), opts...)}
}

// FindByProductID 流ID 即商品ID
func (r *Repository) FindByProductID(ctx context.Context, productID string) (*Inventory, bool, error) {
	return r.FindByID(ctx, productID)
}

func (r *Repository) FindActive(ctx context.Context) ([]*Inventory, error) {
	return r.find(ctx, func(inv *Inventory) bool { return inv.IsActive })
}

// FindLowStock 启用中且低于最低库存的商品
func (r *Repository) FindLowStock(ctx context.Context) ([]*Inventory, error) {
	return r.find(ctx, func(inv *Inventory) bool { return inv.IsActive && inv.IsLowStock() })
}

func (r *Repository) FindByCategory(ctx context.Context, category string) ([]*Inventory, error) {
	return r.find(ctx, func(inv *Inventory) bool { return inv.Category == category })
}

// FindReservedFor 仍为订单保留库存的商品
func (r *Repository) FindReservedFor(ctx context.Context, orderID string) ([]*Inventory, error) {
	return r.find(ctx, func(inv *Inventory) bool { return inv.ReservedFor(orderID) > 0 })
}

// find 结果按商品ID排序
func (r *Repository) find(ctx context.Context, match func(*Inventory) bool) ([]*Inventory, error) {
	out, err := r.Find(ctx, match)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
