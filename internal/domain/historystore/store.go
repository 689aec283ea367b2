// Package historystore defines the historical market data store contract and its
// in-memory implementations.
package historystore

import (
	"context"

	"github.com/coachpo/chronicle/errs"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/query"
)

// Scope names the historical data store in error envelopes.
const Scope = "historical_data_store"

// ErrIO matches every backing store failure surfaced by a Store.
var ErrIO = errs.New(Scope, errs.CodeIO)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errs.New(Scope, errs.CodeUnavailable, errs.WithMessage("store closed"))

// IOError wraps a backing store failure of op so that errors.Is(err, ErrIO) holds and
// the cause stays reachable through errors.Unwrap.
func IOError(op string, cause error) error {
	return errs.New(Scope, errs.CodeIO, errs.WithMessage(op), errs.WithCause(cause))
}

// Store persists and queries time-sequenced market data.
//
// Loads return records in ascending sequence order. Batch stores apply records in the
// order given within a single transaction.
type Store interface {
	LoadBboQuotes(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedBboQuote, error)
	StoreBboQuote(ctx context.Context, v marketdata.SequencedSecurityBboQuote) error
	StoreBboQuotes(ctx context.Context, vs []marketdata.SequencedSecurityBboQuote) error

	LoadMarketQuotes(ctx context.Context, q query.MarketWideDataQuery) ([]marketdata.SequencedMarketQuote, error)
	StoreMarketQuote(ctx context.Context, v marketdata.SequencedMarketWideMarketQuote) error
	StoreMarketQuotes(ctx context.Context, vs []marketdata.SequencedMarketWideMarketQuote) error

	LoadBookQuotes(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedBookQuote, error)
	StoreBookQuote(ctx context.Context, v marketdata.SequencedSecurityBookQuote) error
	StoreBookQuotes(ctx context.Context, vs []marketdata.SequencedSecurityBookQuote) error

	LoadTimeAndSales(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedTimeAndSale, error)
	StoreTimeAndSale(ctx context.Context, v marketdata.SequencedSecurityTimeAndSale) error
	StoreTimeAndSales(ctx context.Context, vs []marketdata.SequencedSecurityTimeAndSale) error

	LoadOrderImbalances(ctx context.Context, q query.MarketWideDataQuery) ([]marketdata.SequencedOrderImbalance, error)
	StoreOrderImbalance(ctx context.Context, v marketdata.SequencedMarketWideOrderImbalance) error
	StoreOrderImbalances(ctx context.Context, vs []marketdata.SequencedMarketWideOrderImbalance) error

	// LoadSecurityInfo returns reference data inside the query's region in
	// (symbol, country) order.
	LoadSecurityInfo(ctx context.Context, q query.SecurityInfoQuery) ([]marketdata.SecurityInfo, error)
	// StoreSecurityInfo inserts info or replaces the record with the same
	// (symbol, country).
	StoreSecurityInfo(ctx context.Context, info marketdata.SecurityInfo) error

	Close() error
}
