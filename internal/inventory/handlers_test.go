package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/internal/contracts"
	"github.com/ChenBigdata421/jxt-saga/internal/testkit"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/errs"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/eventstore"
	"github.com/ChenBigdata421/jxt-saga/sdk/service"
)

type fixture struct {
	bus   eventbus.EventBus
	store *eventstore.BusStore
	repo  *Repository
	cmds  *commandbus.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := testkit.Bus(t)
	store := testkit.Store(t, bus, contracts.TopicInventory)
	repo := NewRepository(store)
	cmds := testkit.CommandBus(t)
	NewHandlers(repo, service.Service{Log: zap.NewNop()}).Register(cmds)
	return &fixture{bus: bus, store: store, repo: repo, cmds: cmds}
}

func (f *fixture) exec(t *testing.T, cmd commandbus.Command) error {
	t.Helper()
	return f.cmds.Execute(context.Background(), cmd)
}

func (f *fixture) seed(t *testing.T, productID string, available, minLevel int64) {
	t.Helper()
	require.NoError(t, f.exec(t, &CreateInventory{
		Metadata:      commandbus.NewMetadata("", ""),
		ProductID:     productID,
		Name:          productID + "-name",
		Category:      "peripherals",
		Available:     available,
		MinStockLevel: minLevel,
	}))
}

func (f *fixture) inventory(t *testing.T, productID string) *Inventory {
	t.Helper()
	inv, found, err := f.repo.FindByProductID(context.Background(), productID)
	require.NoError(t, err)
	require.True(t, found, "inventory %s", productID)
	return inv
}

func reserve(corr, productID, orderID string, qty int64) *ReserveStock {
	return &ReserveStock{StockCommand: stock(commandbus.NewMetadata(corr, ""), productID, orderID, qty)}
}

func TestHandlers_Register(t *testing.T) {
	assert.Equal(t, 8, newFixture(t).cmds.Registered())
}

func TestReserveStock(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "P1", 5, 2)

	require.NoError(t, f.exec(t, reserve("corr-1", "P1", "o-1", 3)))
	inv := f.inventory(t, "P1")
	assert.Equal(t, int64(2), inv.Available)
	assert.Equal(t, int64(3), inv.Reserved)
	assert.True(t, inv.IsLowStock())

	// 同一订单同一商品的重复投递
	require.NoError(t, f.exec(t, reserve("corr-1", "P1", "o-1", 3)))
	assert.Equal(t, int64(3), f.inventory(t, "P1").Reserved)

	assert.ErrorIs(t, f.exec(t, reserve("corr-2", "P1", "o-2", 3)), errs.ErrInsufficientStock)
	assert.ErrorIs(t, f.exec(t, reserve("corr-3", "P9", "o-3", 1)), errs.ErrAggregateNotFound)
	assert.ErrorIs(t, f.exec(t, reserve("corr-4", "P1", "o-4", 0)), errs.ErrValidation)
}

func TestStockLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "P1", 10, 1)
	require.NoError(t, f.exec(t, reserve("corr-1", "P1", "o-1", 4)))
	require.NoError(t, f.exec(t, reserve("corr-2", "P1", "o-2", 2)))

	require.NoError(t, f.exec(t, &MoveToInTransit{StockCommand: stock(commandbus.NewMetadata("corr-1", ""), "P1", "o-1", 4)}))
	require.NoError(t, f.exec(t, &ReleaseStock{StockCommand: stock(commandbus.NewMetadata("corr-2", ""), "P1", "o-2", 2)}))

	inv := f.inventory(t, "P1")
	assert.Equal(t, int64(6), inv.Available)
	assert.Zero(t, inv.Reserved)
	assert.Equal(t, int64(4), inv.InTransit)
	assert.Empty(t, inv.Reservations)

	err := f.exec(t, &ReleaseStock{StockCommand: stock(commandbus.NewMetadata("corr-3", ""), "P1", "o-1", 1)})
	assert.ErrorIs(t, err, errs.ErrInvariantViolation)

	require.NoError(t, f.exec(t, &UpdateStock{Metadata: commandbus.NewMetadata("", ""), ProductID: "P1", Available: 50}))
	assert.Equal(t, int64(50), f.inventory(t, "P1").Available)

	require.NoError(t, f.exec(t, &DeactivateInventory{Metadata: commandbus.NewMetadata("", ""), ProductID: "P1"}))
	assert.ErrorIs(t, f.exec(t, reserve("corr-4", "P1", "o-4", 1)), ErrInactive)
	require.NoError(t, f.exec(t, &ActivateInventory{Metadata: commandbus.NewMetadata("", ""), ProductID: "P1"}))
	require.NoError(t, f.exec(t, reserve("corr-5", "P1", "o-5", 1)))
}

func TestRejectReservation_Handler(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "P1", 1, 0)

	require.NoError(t, f.exec(t, &RejectReservation{
		StockCommand: stock(commandbus.NewMetadata("corr-1", "evt-1"), "P1", "o-1", 5),
		Reason:       "insufficient stock",
	}))

	events, err := f.store.GetEventsByType(context.Background(), contracts.StockReservationFailedType)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "corr-1", events[0].CorrelationID)
	assert.Equal(t, int64(1), f.inventory(t, "P1").Available)
}

func TestCreateInventory_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "P1", 1, 0)

	err := f.exec(t, &CreateInventory{Metadata: commandbus.NewMetadata("", ""), ProductID: "P1", Name: "again"})
	assert.ErrorIs(t, err, errs.ErrInvariantViolation)
	assert.Equal(t, "P1-name", f.inventory(t, "P1").Name)
}

func TestSharedCorrelationID_DistinctTargets(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "P1", 1, 0)
	f.seed(t, "P2", 1, 0)
	meta := func() commandbus.Metadata { return commandbus.NewMetadata("corr-batch", "") }

	for _, id := range []string{"P1", "P2"} {
		require.NoError(t, f.exec(t, &UpdateStock{Metadata: meta(), ProductID: id, Available: 9}))
		require.NoError(t, f.exec(t, &DeactivateInventory{Metadata: meta(), ProductID: id}))
	}
	for _, id := range []string{"P1", "P2"} {
		inv := f.inventory(t, id)
		assert.Equal(t, int64(9), inv.Available, id)
		assert.False(t, inv.IsActive, id)
	}

	// 同一商品改到另一个数量不是重复投递
	require.NoError(t, f.exec(t, &UpdateStock{Metadata: meta(), ProductID: "P1", Available: 4}))
	assert.Equal(t, int64(4), f.inventory(t, "P1").Available)

	// 完全相同的调整被吸收
	require.NoError(t, f.exec(t, &UpdateStock{Metadata: meta(), ProductID: "P1", Available: 4}))
	assert.Equal(t, int64(4), f.inventory(t, "P1").Available)
}
