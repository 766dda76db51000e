package order

import (
	"context"

	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/aggregate"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventstore"
)

// Repository 订单仓储
type Repository struct {
	*aggregate.Repository[*Order]
}

// Definition 订单聚合的构造与解码
func Definition() aggregate.Definition[*Order] {
	return aggregate.Definition[*Order]{
		AggregateType: contracts.AggregateOrder,
		New:           New,
		Decode:        aggregate.DecodeWith(contracts.OrderEvents()),
	}
}

func NewRepository(store eventstore.EventStore, opts ...aggregate.Option) *Repository {
	return &Repository{Repository: aggregate.NewRepository(store, Definition(), opts...)}
}

// FindPending 尚未确认的订单
func (r *Repository) FindPending(ctx context.Context) ([]*Order, error) {
	return r.FindByStatus(ctx, StatusCreated)
}

func (r *Repository) FindConfirmed(ctx context.Context) ([]*Order, error) {
	return r.FindByStatus(ctx, StatusConfirmed)
}

func (r *Repository) FindByStatus(ctx context.Context, status Status) ([]*Order, error) {
	return r.Find(ctx, func(o *Order) bool { return o.Status == status })
}
