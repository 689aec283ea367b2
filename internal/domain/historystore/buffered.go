package historystore

import (
	"context"
	"errors"
	"sync"

	"github.com/coachpo/chronicle/errs"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/query"
	"github.com/coachpo/chronicle/lib/async"
)

// DefaultBufferSize is the batch size used when none is configured.
const DefaultBufferSize = 1000

// BufferedStore batches writes to an underlying Store. Records are queued per kind and
// written in batches of the buffer size by a single background worker, so batches reach
// the underlying store in submission order. Loads flush pending writes first.
type BufferedStore struct {
	store Store
	size  int
	pool  *async.Pool

	mu         sync.Mutex
	closed     bool
	bbo        []marketdata.SequencedSecurityBboQuote
	market     []marketdata.SequencedMarketWideMarketQuote
	book       []marketdata.SequencedSecurityBookQuote
	prints     []marketdata.SequencedSecurityTimeAndSale
	imbalances []marketdata.SequencedMarketWideOrderImbalance

	failMu  sync.Mutex
	failure error
}

var _ Store = (*BufferedStore)(nil)

// NewBufferedStore wraps store. A non-positive bufferSize selects DefaultBufferSize.
func NewBufferedStore(store Store, bufferSize int) (*BufferedStore, error) {
	if store == nil {
		return nil, errs.New(Scope, errs.CodeInvalid, errs.WithMessage("underlying store required"))
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	b := &BufferedStore{store: store, size: bufferSize}
	pool, err := async.NewPool(1, 16, async.WithErrorHandler(b.recordFailure))
	if err != nil {
		return nil, err
	}
	b.pool = pool
	return b, nil
}

func (b *BufferedStore) recordFailure(err error) {
	b.failMu.Lock()
	b.failure = errors.Join(b.failure, err)
	b.failMu.Unlock()
}

func (b *BufferedStore) takeFailure() error {
	b.failMu.Lock()
	defer b.failMu.Unlock()
	err := b.failure
	b.failure = nil
	return err
}

// submitLocked schedules a batch write. Callers hold b.mu so batches are queued in
// order.
func (b *BufferedStore) submitLocked(ctx context.Context, write async.Task) error {
	ctx = context.WithoutCancel(ctx)
	err := b.pool.Submit(ctx, write)
	if err == nil || !errs.HasCode(err, errs.CodeUnavailable) {
		return err
	}
	return b.pool.Do(ctx, write)
}

func push[T any](ctx context.Context, b *BufferedStore, pending *[]T, vs []T, write func(context.Context, []T) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	*pending = append(*pending, vs...)
	if len(*pending) < b.size {
		return nil
	}
	batch := *pending
	*pending = nil
	return b.submitLocked(ctx, func(ctx context.Context) error { return write(ctx, batch) })
}

func drain[T any](ctx context.Context, b *BufferedStore, pending *[]T, write func(context.Context, []T) error) error {
	if len(*pending) == 0 {
		return nil
	}
	batch := *pending
	*pending = nil
	return b.submitLocked(ctx, func(ctx context.Context) error { return write(ctx, batch) })
}

// Flush writes every pending record and waits for the writes to complete. It returns
// any failure of a background write since the previous Flush.
func (b *BufferedStore) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	err := b.drainAllLocked(ctx)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.wait(ctx)
}

func (b *BufferedStore) drainAllLocked(ctx context.Context) error {
	return errors.Join(
		drain(ctx, b, &b.bbo, b.store.StoreBboQuotes),
		drain(ctx, b, &b.market, b.store.StoreMarketQuotes),
		drain(ctx, b, &b.book, b.store.StoreBookQuotes),
		drain(ctx, b, &b.prints, b.store.StoreTimeAndSales),
		drain(ctx, b, &b.imbalances, b.store.StoreOrderImbalances),
	)
}

// wait blocks until every queued batch has been written.
func (b *BufferedStore) wait(ctx context.Context) error {
	if err := b.pool.Do(ctx, func(context.Context) error { return nil }); err != nil {
		return err
	}
	return b.takeFailure()
}

// LoadBboQuotes implements Store.
func (b *BufferedStore) LoadBboQuotes(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedBboQuote, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.store.LoadBboQuotes(ctx, q)
}

// StoreBboQuote implements Store.
func (b *BufferedStore) StoreBboQuote(ctx context.Context, v marketdata.SequencedSecurityBboQuote) error {
	return b.StoreBboQuotes(ctx, []marketdata.SequencedSecurityBboQuote{v})
}

// StoreBboQuotes implements Store.
func (b *BufferedStore) StoreBboQuotes(ctx context.Context, vs []marketdata.SequencedSecurityBboQuote) error {
	return push(ctx, b, &b.bbo, vs, b.store.StoreBboQuotes)
}

// LoadMarketQuotes implements Store.
func (b *BufferedStore) LoadMarketQuotes(ctx context.Context, q query.MarketWideDataQuery) ([]marketdata.SequencedMarketQuote, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.store.LoadMarketQuotes(ctx, q)
}

// StoreMarketQuote implements Store.
func (b *BufferedStore) StoreMarketQuote(ctx context.Context, v marketdata.SequencedMarketWideMarketQuote) error {
	return b.StoreMarketQuotes(ctx, []marketdata.SequencedMarketWideMarketQuote{v})
}

// StoreMarketQuotes implements Store.
func (b *BufferedStore) StoreMarketQuotes(ctx context.Context, vs []marketdata.SequencedMarketWideMarketQuote) error {
	return push(ctx, b, &b.market, vs, b.store.StoreMarketQuotes)
}

// LoadBookQuotes implements Store.
func (b *BufferedStore) LoadBookQuotes(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedBookQuote, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.store.LoadBookQuotes(ctx, q)
}

// StoreBookQuote implements Store.
func (b *BufferedStore) StoreBookQuote(ctx context.Context, v marketdata.SequencedSecurityBookQuote) error {
	return b.StoreBookQuotes(ctx, []marketdata.SequencedSecurityBookQuote{v})
}

// StoreBookQuotes implements Store.
func (b *BufferedStore) StoreBookQuotes(ctx context.Context, vs []marketdata.SequencedSecurityBookQuote) error {
	return push(ctx, b, &b.book, vs, b.store.StoreBookQuotes)
}

// LoadTimeAndSales implements Store.
func (b *BufferedStore) LoadTimeAndSales(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedTimeAndSale, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.store.LoadTimeAndSales(ctx, q)
}

// StoreTimeAndSale implements Store.
func (b *BufferedStore) StoreTimeAndSale(ctx context.Context, v marketdata.SequencedSecurityTimeAndSale) error {
	return b.StoreTimeAndSales(ctx, []marketdata.SequencedSecurityTimeAndSale{v})
}

// StoreTimeAndSales implements Store.
func (b *BufferedStore) StoreTimeAndSales(ctx context.Context, vs []marketdata.SequencedSecurityTimeAndSale) error {
	return push(ctx, b, &b.prints, vs, b.store.StoreTimeAndSales)
}

// LoadOrderImbalances implements Store.
func (b *BufferedStore) LoadOrderImbalances(ctx context.Context, q query.MarketWideDataQuery) ([]marketdata.SequencedOrderImbalance, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.store.LoadOrderImbalances(ctx, q)
}

// StoreOrderImbalance implements Store.
func (b *BufferedStore) StoreOrderImbalance(ctx context.Context, v marketdata.SequencedMarketWideOrderImbalance) error {
	return b.StoreOrderImbalances(ctx, []marketdata.SequencedMarketWideOrderImbalance{v})
}

// StoreOrderImbalances implements Store.
func (b *BufferedStore) StoreOrderImbalances(ctx context.Context, vs []marketdata.SequencedMarketWideOrderImbalance) error {
	return push(ctx, b, &b.imbalances, vs, b.store.StoreOrderImbalances)
}

// LoadSecurityInfo implements Store.
func (b *BufferedStore) LoadSecurityInfo(ctx context.Context, q query.SecurityInfoQuery) ([]marketdata.SecurityInfo, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.store.LoadSecurityInfo(ctx, q)
}

// StoreSecurityInfo writes through; reference data is not buffered.
func (b *BufferedStore) StoreSecurityInfo(ctx context.Context, info marketdata.SecurityInfo) error {
	if err := b.Flush(ctx); err != nil {
		return err
	}
	return b.store.StoreSecurityInfo(ctx, info)
}

// Close rejects further writes, flushes what is pending and closes the underlying
// store.
func (b *BufferedStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	ctx := context.Background()
	err := b.drainAllLocked(ctx)
	b.mu.Unlock()
	if err == nil {
		err = b.wait(ctx)
	}
	return errors.Join(err, b.pool.Shutdown(ctx), b.store.Close())
}
