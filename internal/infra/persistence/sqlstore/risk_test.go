package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/domain/riskstore"
	"github.com/coachpo/chronicle/internal/numeric"
)

var (
	ibm = region.Security{Symbol: "IBM", Country: "US", Venue: "XNYS"}
	ry  = region.Security{Symbol: "RY", Country: "CA", Venue: "XTSE"}
)

func newRiskStore(t *testing.T) *RiskDataStore {
	t.Helper()
	store, err := OpenRiskDataStore(context.Background(), sqliteOptions(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func inventory(sec region.Security, currency riskstore.CurrencyCode, qty int64) riskstore.Inventory {
	return riskstore.Inventory{
		Security:           sec,
		Currency:           currency,
		Quantity:           numeric.QuantityFromInt(qty),
		CostBasis:          numeric.MustParseMoney("1412.50"),
		GrossProfitAndLoss: numeric.MustParseMoney("-3.25"),
		Fees:               numeric.MustParseMoney("0.35"),
		Volume:             numeric.QuantityFromInt(qty * 2),
		TransactionCount:   3,
	}
}

func TestRiskStoreFullReplace(t *testing.T) {
	ctx := context.Background()
	store := newRiskStore(t)

	v1 := riskstore.InventorySnapshot{
		Sequence:       10,
		Inventories:    []riskstore.Inventory{inventory(ibm, "USD", 100), inventory(ry, "CAD", 50)},
		ExcludedOrders: []riskstore.OrderID{4, 8},
	}
	v2 := riskstore.InventorySnapshot{
		Sequence:       12,
		Inventories:    []riskstore.Inventory{inventory(ibm, "USD", 40)},
		ExcludedOrders: []riskstore.OrderID{11},
	}
	require.NoError(t, store.Store(ctx, "ACCT-1", v1))
	require.NoError(t, store.Store(ctx, "ACCT-1", v2))

	got, err := store.LoadInventorySnapshot(ctx, "ACCT-1")
	require.NoError(t, err)
	require.Equal(t, v2.Normalize(), got)
}

func TestRiskStoreAccountsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := newRiskStore(t)

	a := riskstore.InventorySnapshot{Sequence: 1, Inventories: []riskstore.Inventory{inventory(ibm, "USD", 1)}}
	b := riskstore.InventorySnapshot{Sequence: 2, ExcludedOrders: []riskstore.OrderID{7}}
	require.NoError(t, store.Store(ctx, "A", a))
	require.NoError(t, store.Store(ctx, "B", b))

	got, err := store.LoadInventorySnapshot(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, a.Normalize(), got)
	got, err = store.LoadInventorySnapshot(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, b.Normalize(), got)
}

func TestRiskStoreUnknownAccountIsEmpty(t *testing.T) {
	got, err := newRiskStore(t).LoadInventorySnapshot(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, riskstore.InventorySnapshot{}.Normalize(), got)
}

func TestRiskStoreClear(t *testing.T) {
	ctx := context.Background()
	store := newRiskStore(t)
	require.NoError(t, store.Store(ctx, "A", riskstore.InventorySnapshot{
		Sequence:       5,
		Inventories:    []riskstore.Inventory{inventory(ry, "CAD", 9)},
		ExcludedOrders: []riskstore.OrderID{1},
	}))
	require.NoError(t, store.Clear(ctx))

	got, err := store.LoadInventorySnapshot(ctx, "A")
	require.NoError(t, err)
	require.Zero(t, got.Sequence)
	require.Empty(t, got.Inventories)
	require.Empty(t, got.ExcludedOrders)
}

func TestRiskStoreDuplicateRowsRollBack(t *testing.T) {
	ctx := context.Background()
	store := newRiskStore(t)
	good := riskstore.InventorySnapshot{Sequence: 1, ExcludedOrders: []riskstore.OrderID{1}}
	require.NoError(t, store.Store(ctx, "A", good))

	bad := riskstore.InventorySnapshot{Sequence: 2, ExcludedOrders: []riskstore.OrderID{3, 3}}
	err := store.Store(ctx, "A", bad)
	require.ErrorIs(t, err, riskstore.ErrIO)

	got, err := store.LoadInventorySnapshot(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, good.Normalize(), got)
}

func TestRiskStoreClosed(t *testing.T) {
	store := newRiskStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	_, err := store.LoadInventorySnapshot(context.Background(), "A")
	require.ErrorIs(t, err, riskstore.ErrClosed)
}
