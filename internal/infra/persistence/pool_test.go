package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = '?' AND c IN (?, ?)"
	require.Equal(t, q, SQLite.Rebind(q))
	require.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = '?' AND c IN ($2, $3)", Postgres.Rebind(q))
	require.Equal(t, "SELECT 1", Postgres.Rebind("SELECT 1"))
}

func TestParseDialect(t *testing.T) {
	d, ok := ParseDialect("PostgreSQL")
	require.True(t, ok)
	require.Equal(t, Postgres, d)
	d, ok = ParseDialect("sqlite")
	require.True(t, ok)
	require.Equal(t, SQLite, d)
	_, ok = ParseDialect("mysql")
	require.False(t, ok)
}

func TestSQLiteDSNAddsPragmas(t *testing.T) {
	require.Contains(t, sqliteDSN("data.db"), "_pragma=busy_timeout%285000%29")
	require.Equal(t, "data.db?_pragma=foreign_keys(OFF)", sqliteDSN("data.db?_pragma=foreign_keys(OFF)"))
}

func openTestPool(t *testing.T) Pool {
	t.Helper()
	pool, err := Open(context.Background(), Options{
		Dialect:  SQLite,
		DSN:      filepath.Join(t.TempDir(), "pool.db"),
		MaxConns: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestSQLitePoolTransactions(t *testing.T) {
	ctx := context.Background()
	pool := openTestPool(t)
	require.Equal(t, SQLite, pool.Dialect())

	_, err := pool.Exec(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v BIGINT NOT NULL)")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = pool.InTx(ctx, func(ctx context.Context, tx Querier) error {
		if _, err := tx.Exec(ctx, "INSERT INTO kv (k, v) VALUES (?, ?)", "a", 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM kv").Scan(&count))
	require.Zero(t, count)

	require.NoError(t, pool.InTx(ctx, func(ctx context.Context, tx Querier) error {
		n, err := tx.Exec(ctx, "INSERT INTO kv (k, v) VALUES (?, ?), (?, ?)", "a", 1, "b", 2)
		require.Equal(t, int64(2), n)
		return err
	}))

	rows, err := pool.Query(ctx, "SELECT k, v FROM kv WHERE v >= ? ORDER BY k", 1)
	require.NoError(t, err)
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		var v int64
		require.NoError(t, rows.Scan(&k, &v))
		keys = append(keys, k)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"a", "b"}, keys)
	require.GreaterOrEqual(t, pool.Stats().Total, int64(1))
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), Options{Dialect: SQLite})
	require.Error(t, err)
}

func TestOptionsInMemory(t *testing.T) {
	require.True(t, Options{Dialect: SQLite, DSN: ":memory:"}.InMemory())
	require.True(t, Options{Dialect: SQLite, DSN: "file::memory:?cache=shared"}.InMemory())
	require.True(t, Options{Dialect: SQLite, DSN: "file:test.db?mode=memory"}.InMemory())
	require.False(t, Options{Dialect: SQLite, DSN: "chronicle.db"}.InMemory())
	require.False(t, Options{Dialect: Postgres, DSN: ":memory:"}.InMemory())
}
