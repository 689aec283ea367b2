package sqlstore

import (
	"context"
	"errors"
	"runtime"

	"github.com/coachpo/chronicle/internal/infra/persistence"
)

// OpenHistoricalDataStore connects a reader pool of runtime.NumCPU connections and a
// single-connection writer pool, ensures the schema and returns the store. An in-memory
// SQLite database is read and written through the writer pool alone.
func OpenHistoricalDataStore(ctx context.Context, opts persistence.Options) (*HistoricalDataStore, error) {
	writerOpts := opts
	writerOpts.MaxConns = 1
	writerOpts.MinConns = 0
	writer, err := persistence.Open(ctx, writerOpts)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, writer); err != nil {
		return nil, errors.Join(err, writer.Close())
	}
	if opts.InMemory() {
		persistence.ObservePoolMetrics(writer, "writer")
		store, err := NewHistoricalDataStore(writer, writer)
		if err != nil {
			return nil, errors.Join(err, writer.Close())
		}
		return store, nil
	}
	readerOpts := opts
	readerOpts.MaxConns = int32(runtime.NumCPU())
	reader, err := persistence.Open(ctx, readerOpts)
	if err != nil {
		return nil, errors.Join(err, writer.Close())
	}
	persistence.ObservePoolMetrics(reader, "reader")
	persistence.ObservePoolMetrics(writer, "writer")
	store, err := NewHistoricalDataStore(reader, writer)
	if err != nil {
		return nil, errors.Join(err, reader.Close(), writer.Close())
	}
	return store, nil
}

// OpenRiskDataStore connects a pool, ensures the schema and returns the store.
func OpenRiskDataStore(ctx context.Context, opts persistence.Options) (*RiskDataStore, error) {
	pool, err := persistence.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		return nil, errors.Join(err, pool.Close())
	}
	persistence.ObservePoolMetrics(pool, "risk")
	return NewRiskDataStore(pool)
}
