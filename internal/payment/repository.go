package payment

import (
	"context"

	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/aggregate"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventstore"
)

type Repository struct {
	*aggregate.Repository[*Payment]
}

func Definition() aggregate.Definition[*Payment] {
	return aggregate.Definition[*Payment]{
		AggregateType: contracts.AggregatePayment,
		New:           New,
		Decode:        aggregate.DecodeWith(contracts.PaymentEvents()),
	}
}

func NewRepository(store eventstore.EventStore, opts ...aggregate.Option) *Repository {
	return &Repository{Repository: aggregate.NewRepository(store, Definition(), opts...)}
}

// FindByOrderID 订单最近一次的支付
func (r *Repository) FindByOrderID(ctx context.Context, orderID string) (*Payment, bool, error) {
	payments, err := r.Find(ctx, func(p *Payment) bool { return p.OrderID == orderID })
	if err != nil || len(payments) == 0 {
		return nil, false, err
	}
	latest := payments[0]
	for _, p := range payments[1:] {
		if p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	return latest, true, nil
}

func (r *Repository) FindPending(ctx context.Context) ([]*Payment, error) {
	return r.FindByStatus(ctx, StatusPending)
}

func (r *Repository) FindConfirmed(ctx context.Context) ([]*Payment, error) {
	return r.FindByStatus(ctx, StatusConfirmed)
}

func (r *Repository) FindFailed(ctx context.Context) ([]*Payment, error) {
	return r.FindByStatus(ctx, StatusFailed)
}

func (r *Repository) FindByStatus(ctx context.Context, status Status) ([]*Payment, error) {
	return r.Find(ctx, func(p *Payment) bool { return p.Status == status })
}
