package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	// Registers the pure-Go "sqlite" database/sql driver.
	_ "github.com/glebarez/go-sqlite"
)

// Options describes how to open a Pool.
type Options struct {
	Dialect           Dialect
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// InMemory reports whether opts select an in-memory SQLite database. Each connection to
// such a database sees its own copy, so it is served through a single connection.
func (o Options) InMemory() bool {
	if o.Dialect == Postgres {
		return false
	}
	dsn := strings.TrimSpace(o.DSN)
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") || strings.Contains(dsn, "mode=memory")
}

// Open connects a pool for opts.Dialect and verifies the connection.
func Open(ctx context.Context, opts Options) (Pool, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, fmt.Errorf("persistence: dsn required")
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 1
	}
	switch opts.Dialect {
	case Postgres:
		return openPostgres(ctx, opts)
	default:
		return openSQLite(ctx, opts)
	}
}

var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

// sqliteDSN appends the connection pragmas to path unless the DSN already sets any.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") || path == ":memory:" {
		return path
	}
	values := url.Values{}
	for _, p := range sqlitePragmas {
		values.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + values.Encode()
}

func openSQLite(ctx context.Context, opts Options) (Pool, error) {
	db, err := sql.Open("sqlite", sqliteDSN(opts.DSN))
	if err != nil {
		return nil, fmt.Errorf("persistence: open sqlite: %w", err)
	}
	if opts.InMemory() {
		// Closing the only connection would drop the database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(int(opts.MaxConns))
		db.SetMaxIdleConns(int(opts.MaxConns))
		if opts.MaxConnLifetime > 0 {
			db.SetConnMaxLifetime(opts.MaxConnLifetime)
		}
		if opts.MaxConnIdleTime > 0 {
			db.SetConnMaxIdleTime(opts.MaxConnIdleTime)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: ping sqlite: %w", err)
	}
	return FromDB(db, SQLite), nil
}

func openPostgres(ctx context.Context, opts Options) (Pool, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse postgres dsn: %w", err)
	}
	cfg.MaxConns = opts.MaxConns
	if opts.MinConns > 0 {
		cfg.MinConns = min(opts.MinConns, opts.MaxConns)
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("persistence: create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persistence: ping postgres: %w", err)
	}
	return FromPgx(pool), nil
}
