package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/chronicle/internal/domain/historystore"
	"github.com/coachpo/chronicle/internal/domain/historystore/storetest"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/query"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/infra/persistence"
	"github.com/coachpo/chronicle/internal/numeric"
)

func sqliteOptions(t *testing.T) persistence.Options {
	t.Helper()
	return persistence.Options{
		Dialect:  persistence.SQLite,
		DSN:      filepath.Join(t.TempDir(), "chronicle.db"),
		MaxConns: 4,
	}
}

func newSQLiteStore(t *testing.T) *HistoricalDataStore {
	t.Helper()
	store, err := OpenHistoricalDataStore(context.Background(), sqliteOptions(t))
	require.NoError(t, err)
	return store
}

func TestHistoricalDataStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) historystore.Store { return newSQLiteStore(t) })
}

func TestBufferedHistoricalDataStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) historystore.Store {
		buffered, err := historystore.NewBufferedStore(newSQLiteStore(t), 3)
		require.NoError(t, err)
		return buffered
	})
}

func TestSameSequenceReplacesRow(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	defer store.Close()

	first := storetest.Bbo(storetest.IBM, 1)
	second := storetest.Bbo(storetest.IBM, 1)
	second.Value.Value.Bid.Price = numeric.MustParseMoney("99")
	require.NoError(t, store.StoreBboQuotes(ctx, []marketdata.SequencedSecurityBboQuote{first, second}))

	got, err := store.LoadBboQuotes(ctx, query.NewQuery(storetest.IBM))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, second.Value.Value, got[0].Value)
}

func TestCanceledContextIsIOError(t *testing.T) {
	store := newSQLiteStore(t)
	defer store.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.LoadBboQuotes(ctx, query.NewQuery(storetest.IBM))
	require.ErrorIs(t, err, historystore.ErrIO)
	require.ErrorIs(t, err, context.Canceled)

	err = store.StoreBboQuote(ctx, storetest.Bbo(storetest.IBM, 1))
	require.ErrorIs(t, err, historystore.ErrIO)
}

func TestCloseIsIdempotent(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.LoadBboQuotes(context.Background(), query.NewQuery(storetest.IBM))
	require.ErrorIs(t, err, historystore.ErrIO)
}

func TestRegionFragment(t *testing.T) {
	require.True(t, regionFragment(region.Global("Global")).isEmpty())
	require.Equal(t, "FALSE", regionFragment(region.New("empty")).SQL)

	r := region.FromCountry("CA").
		WithMarket(region.Market{Code: "XNYS", Country: "US"}).
		WithSecurity(storetest.MSFT)
	frag := regionFragment(r)
	require.Equal(t, "(country IN (?) OR venue IN (?) OR (symbol = ? AND country = ?))", frag.SQL)
	require.Equal(t, []any{"CA", "XNYS", "MSFT", "US"}, frag.Args)
}

func TestSelectSQLOrdersByLimitDirection(t *testing.T) {
	where := and(securityIndex(storetest.IBM), rangeFragment(query.SequenceRange(2, 9)))
	sql, args := selectSQL(bboTable, where, []string{"sequence"}, query.FromTail(3))
	require.Contains(t, sql, "WHERE symbol = ? AND country = ? AND sequence >= ? AND sequence <= ?")
	require.Contains(t, sql, "ORDER BY sequence DESC LIMIT ?")
	require.Equal(t, []any{"IBM", "US", int64(2), int64(9), int64(3)}, args)

	sql, _ = selectSQL(bboTable, where, []string{"sequence"}, query.Unlimited())
	require.NotContains(t, sql, "LIMIT")
}

func TestInMemoryStoreReadsItsWrites(t *testing.T) {
	ctx := context.Background()
	store, err := OpenHistoricalDataStore(ctx, persistence.Options{
		Dialect:  persistence.SQLite,
		DSN:      ":memory:",
		MaxConns: 4,
	})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.StoreBboQuotes(ctx, []marketdata.SequencedSecurityBboQuote{
		storetest.Bbo(storetest.IBM, 1),
		storetest.Bbo(storetest.IBM, 2),
	}))
	got, err := store.LoadBboQuotes(ctx, query.NewQuery(storetest.IBM))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, marketdata.Sequence(2), got[1].Sequence)
}
