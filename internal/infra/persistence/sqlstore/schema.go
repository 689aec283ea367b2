package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	dbmigrations "github.com/coachpo/chronicle/db/migrations"
	"github.com/coachpo/chronicle/internal/infra/persistence"
)

// EnsureSchema creates every table and index of the embedded up migrations that does
// not exist yet. The DDL is idempotent, so it is safe on every start. PostgreSQL
// deployments that track versions run cmd/migrate instead.
func EnsureSchema(ctx context.Context, pool persistence.Pool) error {
	statements, err := schemaStatements(dbmigrations.Files)
	if err != nil {
		return err
	}
	return pool.InTx(ctx, func(ctx context.Context, tx persistence.Querier) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("sqlstore: ensure schema: %w", err)
			}
		}
		return nil
	})
}

// schemaStatements returns the statements of every *.up.sql file in name order.
func schemaStatements(fsys fs.FS) ([]string, error) {
	names, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list migrations: %w", err)
	}
	slices.Sort(names)
	var out []string
	for _, name := range names {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: read %s: %w", name, err)
		}
		for _, stmt := range strings.Split(string(body), ";") {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				out = append(out, stmt)
			}
		}
	}
	return out, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
