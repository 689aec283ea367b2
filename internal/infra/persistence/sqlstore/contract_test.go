//go:build contract

package sqlstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coachpo/chronicle/internal/domain/historystore"
	"github.com/coachpo/chronicle/internal/domain/historystore/storetest"
	"github.com/coachpo/chronicle/internal/domain/riskstore"
	"github.com/coachpo/chronicle/internal/infra/persistence"
	"github.com/coachpo/chronicle/internal/infra/persistence/migrations"
)

var (
	postgresDSN string
	setupErr    error
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "chronicle"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}
	setupErr = initialiseDatabase(ctx, container)
	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func initialiseDatabase(ctx context.Context, container testcontainers.Container) error {
	host, err := container.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	postgresDSN = fmt.Sprintf("postgres://postgres:secret@%s:%s/chronicle?sslmode=disable", host, port.Port())
	return migrations.Apply(ctx, postgresDSN, "", nil)
}

func postgresOptions(t *testing.T) persistence.Options {
	t.Helper()
	if setupErr != nil {
		t.Skipf("postgres contract setup unavailable: %v", setupErr)
	}
	return persistence.Options{Dialect: persistence.Postgres, DSN: postgresDSN, MaxConns: 4}
}

func truncate(t *testing.T, opts persistence.Options) {
	t.Helper()
	ctx := context.Background()
	pool, err := persistence.Open(ctx, opts)
	require.NoError(t, err)
	defer pool.Close()
	_, err = pool.Exec(ctx, `TRUNCATE bbo_quotes, market_quotes, book_quotes, time_and_sales,
		order_imbalances, security_info, inventory_entries, inventory_sequences, inventory_excluded_orders`)
	require.NoError(t, err)
}

func TestPostgresHistoricalDataStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) historystore.Store {
		opts := postgresOptions(t)
		truncate(t, opts)
		store, err := OpenHistoricalDataStore(context.Background(), opts)
		require.NoError(t, err)
		return store
	})
}

func TestPostgresRiskDataStore(t *testing.T) {
	ctx := context.Background()
	opts := postgresOptions(t)
	truncate(t, opts)
	store, err := OpenRiskDataStore(ctx, opts)
	require.NoError(t, err)
	defer store.Close()

	v1 := riskstore.InventorySnapshot{Sequence: 3, Inventories: []riskstore.Inventory{inventory(ibm, "USD", 10)}}
	v2 := riskstore.InventorySnapshot{Sequence: 4, ExcludedOrders: []riskstore.OrderID{2}}
	require.NoError(t, store.Store(ctx, "ACCT", v1))
	require.NoError(t, store.Store(ctx, "ACCT", v2))
	got, err := store.LoadInventorySnapshot(ctx, "ACCT")
	require.NoError(t, err)
	require.Equal(t, v2.Normalize(), got)
}
