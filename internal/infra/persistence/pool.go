// Package persistence exposes the connection pool abstraction shared by the SQL
// repositories, with adapters for database/sql and pgx.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Rows iterates a query result.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Row is a single-row query result.
type Row interface {
	Scan(dest ...any) error
}

// Querier runs statements written with ? placeholders. Implementations rebind the
// placeholders for their dialect.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Total        int64
	Idle         int64
	InUse        int64
	Constructing int64
}

// Pool is a set of connections to one database.
type Pool interface {
	Querier
	// InTx runs fn inside a transaction committed when fn returns nil and rolled back
	// otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error
	Dialect() Dialect
	Stats() Stats
	Close() error
}

// FromDB adapts a database/sql handle.
func FromDB(db *sql.DB, dialect Dialect) Pool {
	return &sqlPool{db: db, dialect: dialect}
}

// FromPgx adapts a pgx pool. Statements are rebound to PostgreSQL placeholders.
func FromPgx(pool *pgxpool.Pool) Pool {
	return &pgxPool{pool: pool}
}

type sqlPool struct {
	db      *sql.DB
	dialect Dialect
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqlRunner struct {
	q       sqlQuerier
	dialect Dialect
}

type sqlRows struct{ *sql.Rows }

func (r sqlRows) Close() { _ = r.Rows.Close() }

func (r sqlRunner) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := r.q.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (r sqlRunner) QueryRow(ctx context.Context, query string, args ...any) Row {
	return r.q.QueryRowContext(ctx, r.dialect.Rebind(query), args...)
}

func (r sqlRunner) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.q.ExecContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (p *sqlPool) runner() sqlRunner { return sqlRunner{q: p.db, dialect: p.dialect} }

func (p *sqlPool) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return p.runner().Query(ctx, query, args...)
}

func (p *sqlPool) QueryRow(ctx context.Context, query string, args ...any) Row {
	return p.runner().QueryRow(ctx, query, args...)
}

func (p *sqlPool) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return p.runner().Exec(ctx, query, args...)
}

func (p *sqlPool) InTx(ctx context.Context, fn func(context.Context, Querier) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if runErr := fn(ctx, sqlRunner{q: tx, dialect: p.dialect}); runErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback tx: %w (original error: %v)", rbErr, runErr)
		}
		return runErr
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (p *sqlPool) Dialect() Dialect { return p.dialect }

func (p *sqlPool) Stats() Stats {
	s := p.db.Stats()
	return Stats{
		Total: int64(s.OpenConnections),
		Idle:  int64(s.Idle),
		InUse: int64(s.InUse),
	}
}

func (p *sqlPool) Close() error { return p.db.Close() }

type pgxPool struct {
	pool *pgxpool.Pool
}

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxRunner struct {
	q    pgxQuerier
	exec func(ctx context.Context, sql string, args ...any) (int64, error)
}

func (r pgxRunner) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := r.q.Query(ctx, Postgres.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r pgxRunner) QueryRow(ctx context.Context, query string, args ...any) Row {
	return r.q.QueryRow(ctx, Postgres.Rebind(query), args...)
}

func (r pgxRunner) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return r.exec(ctx, Postgres.Rebind(query), args...)
}

func (p *pgxPool) runner() pgxRunner {
	return pgxRunner{q: p.pool, exec: func(ctx context.Context, sql string, args ...any) (int64, error) {
		tag, err := p.pool.Exec(ctx, sql, args...)
		return tag.RowsAffected(), err
	}}
}

func (p *pgxPool) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return p.runner().Query(ctx, query, args...)
}

func (p *pgxPool) QueryRow(ctx context.Context, query string, args ...any) Row {
	return p.runner().QueryRow(ctx, query, args...)
}

func (p *pgxPool) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return p.runner().Exec(ctx, query, args...)
}

func (p *pgxPool) InTx(ctx context.Context, fn func(context.Context, Querier) error) error {
	var txOptions pgx.TxOptions
	txOptions.IsoLevel = pgx.ReadCommitted
	txOptions.AccessMode = pgx.ReadWrite
	txOptions.DeferrableMode = pgx.NotDeferrable

	tx, err := p.pool.BeginTx(ctx, txOptions)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	runner := pgxRunner{q: tx, exec: func(ctx context.Context, sql string, args ...any) (int64, error) {
		tag, err := tx.Exec(ctx, sql, args...)
		return tag.RowsAffected(), err
	}}
	if runErr := fn(ctx, runner); runErr != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback tx: %w (original error: %v)", rbErr, runErr)
		}
		return runErr
	}
	if err := tx.Commit(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (p *pgxPool) Dialect() Dialect { return Postgres }

func (p *pgxPool) Stats() Stats {
	s := p.pool.Stat()
	return Stats{
		Total:        int64(s.TotalConns()),
		Idle:         int64(s.IdleConns()),
		InUse:        int64(s.AcquiredConns()),
		Constructing: int64(s.ConstructingConns()),
	}
}

func (p *pgxPool) Close() error {
	p.pool.Close()
	return nil
}
