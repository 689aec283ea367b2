// Package sqlstore implements the historical market data store and the risk data store
// over a persistence.Pool speaking SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/chronicle/internal/domain/historystore"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/query"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/infra/persistence"
	"github.com/coachpo/chronicle/internal/infra/telemetry"
)

const storeName = "sql"

// HistoricalDataStore is a historystore.Store backed by SQL tables. Loads run on the
// reader pool and stores on the writer pool; batches are written in one transaction in
// the order given.
type HistoricalDataStore struct {
	reader persistence.Pool
	writer persistence.Pool

	operations metric.Int64Counter
	duration   metric.Float64Histogram

	closeOnce sync.Once
	closeErr  error
}

var _ historystore.Store = (*HistoricalDataStore)(nil)

// NewHistoricalDataStore returns a store reading through reader and writing through
// writer. The store owns both pools; passing the same pool twice is allowed.
func NewHistoricalDataStore(reader, writer persistence.Pool) (*HistoricalDataStore, error) {
	if reader == nil || writer == nil {
		return nil, errors.New("sqlstore: reader and writer pools required")
	}
	meter := otel.Meter("chronicle.sqlstore")
	operations, err := meter.Int64Counter(telemetry.MetricStoreOperations,
		metric.WithDescription("Historical data store operations"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(telemetry.MetricStoreDuration,
		metric.WithDescription("Historical data store operation latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &HistoricalDataStore{
		reader:     reader,
		writer:     writer,
		operations: operations,
		duration:   duration,
	}, nil
}

func (s *HistoricalDataStore) observe(ctx context.Context, op string, start time.Time, err error) {
	attrs := metric.WithAttributes(telemetry.OperationAttributes(
		telemetry.Environment(), storeName, op, telemetry.ResultOf(err))...)
	s.operations.Add(ctx, 1, attrs)
	s.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
}

// wrap maps a failure onto the store's error contract. Unsupported filters keep their
// own kind.
func wrap(op string, err error) error {
	if err == nil || errors.Is(err, query.ErrUnsupportedExpression) {
		return err
	}
	return historystore.IOError(op, err)
}

func securityIndex(sec region.Security) Fragment {
	return Fragment{SQL: "symbol = ? AND country = ?", Args: []any{sec.Symbol, string(sec.Country)}}
}

func marketIndex(market region.MarketCode) Fragment {
	return Fragment{SQL: "market = ?", Args: []any{string(market)}}
}

// rangeFragment selects r over the sequence and timestamp columns.
func rangeFragment(r query.Range) Fragment {
	bound := func(p query.Point, op string) Fragment {
		if p.IsSequence() {
			return Fragment{SQL: "sequence " + op + " ?", Args: []any{int64(p.Sequence())}}
		}
		return Fragment{SQL: "timestamp " + op + " ?", Args: []any{p.Time().UnixNano()}}
	}
	if r.IsTotal() {
		return Fragment{}
	}
	return and(bound(r.Start, ">="), bound(r.End, "<="))
}

// regionFragment selects the securities inside r. SQLite lacks row value IN lists, so
// listed securities become an OR of equalities.
func regionFragment(r region.Region) Fragment {
	if r.IsGlobal() {
		return Fragment{}
	}
	var (
		terms []string
		args  []any
	)
	in := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		terms = append(terms, column+" IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")+")")
		for _, v := range values {
			args = append(args, v)
		}
	}
	countries := make([]string, 0)
	for _, c := range r.Countries() {
		countries = append(countries, string(c))
	}
	in("country", countries)
	venues := make([]string, 0)
	for _, m := range r.Markets() {
		venues = append(venues, string(m.Code))
	}
	in("venue", venues)
	for _, sec := range r.Securities() {
		terms = append(terms, "(symbol = ? AND country = ?)")
		args = append(args, sec.Symbol, string(sec.Country))
	}
	if len(terms) == 0 {
		return Fragment{SQL: "FALSE"}
	}
	return Fragment{SQL: "(" + strings.Join(terms, " OR ") + ")", Args: args}
}

// anchorFragment excludes the anchor and everything on its side of the page.
func anchorFragment(anchor *region.Security, limit query.SnapshotLimit) Fragment {
	if anchor == nil {
		return Fragment{}
	}
	op := ">"
	if limit.Type == query.Tail {
		op = "<"
	}
	return Fragment{
		SQL:  "(symbol " + op + " ? OR (symbol = ? AND country " + op + " ?))",
		Args: []any{anchor.Symbol, anchor.Symbol, string(anchor.Country)},
	}
}

func filterFragment(t table, filter query.Expr) (Fragment, error) {
	if filter == nil {
		return Fragment{}, nil
	}
	return t.translator.Translate(filter)
}

// selectSQL renders the bounded select of t. Tail limits read newest first; callers
// restore ascending order.
func selectSQL(t table, where Fragment, orderBy []string, limit query.SnapshotLimit) (string, []any) {
	dir := " ASC"
	if limit.Type == query.Tail {
		dir = " DESC"
	}
	order := make([]string, len(orderBy))
	for i, c := range orderBy {
		order[i] = c + dir
	}
	sql := "SELECT " + t.selectList() + " FROM " + t.name + " WHERE " + where.SQL +
		" ORDER BY " + strings.Join(order, ", ")
	args := slices.Clone(where.Args)
	if !limit.IsUnlimited() {
		sql += " LIMIT ?"
		args = append(args, int64(limit.Size))
	}
	return sql, args
}

func loadRows[T any](ctx context.Context, pool persistence.Pool, t table, where Fragment, orderBy []string, limit query.SnapshotLimit, scan func(persistence.Rows) (T, error)) ([]T, error) {
	if limit.Size <= 0 {
		return []T{}, nil
	}
	sql, args := selectSQL(t, where, orderBy, limit)
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit.Type == query.Tail {
		slices.Reverse(out)
	}
	return out, nil
}

func load[T any](ctx context.Context, s *HistoricalDataStore, op string, t table, index Fragment, r query.Range, limit query.SnapshotLimit, filter query.Expr, scan func(persistence.Rows) (T, error)) (out []T, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, op, start, err) }()
	f, err := filterFragment(t, filter)
	if err != nil {
		return nil, err
	}
	out, err = loadRows(ctx, s.reader, t, and(index, rangeFragment(r), f), []string{"sequence"}, limit, scan)
	return out, wrap(op, err)
}

func store[T any](ctx context.Context, s *HistoricalDataStore, op string, t table, vs []T, columns func(T) historystore.Columns) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, op, start, err) }()
	if len(vs) == 0 {
		return nil
	}
	err = s.writer.InTx(ctx, func(ctx context.Context, tx persistence.Querier) error {
		for _, v := range vs {
			if _, err := tx.Exec(ctx, t.insertSQL, columns(v).Values()...); err != nil {
				return err
			}
		}
		return nil
	})
	return wrap(op, err)
}

// LoadBboQuotes implements historystore.Store.
func (s *HistoricalDataStore) LoadBboQuotes(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedBboQuote, error) {
	return load(ctx, s, "load_bbo_quotes", bboTable, securityIndex(q.Index), q.Range, q.SnapshotLimit, q.Filter, scanBboQuote)
}

// StoreBboQuote implements historystore.Store.
func (s *HistoricalDataStore) StoreBboQuote(ctx context.Context, v marketdata.SequencedSecurityBboQuote) error {
	return s.StoreBboQuotes(ctx, []marketdata.SequencedSecurityBboQuote{v})
}

// StoreBboQuotes implements historystore.Store.
func (s *HistoricalDataStore) StoreBboQuotes(ctx context.Context, vs []marketdata.SequencedSecurityBboQuote) error {
	return store(ctx, s, "store_bbo_quotes", bboTable, vs, historystore.BboQuoteColumns)
}

// LoadMarketQuotes implements historystore.Store.
func (s *HistoricalDataStore) LoadMarketQuotes(ctx context.Context, q query.MarketWideDataQuery) ([]marketdata.SequencedMarketQuote, error) {
	return load(ctx, s, "load_market_quotes", marketQuoteTable, marketIndex(q.Index), q.Range, q.SnapshotLimit, q.Filter, scanMarketQuote)
}

// StoreMarketQuote implements historystore.Store.
func (s *HistoricalDataStore) StoreMarketQuote(ctx context.Context, v marketdata.SequencedMarketWideMarketQuote) error {
	return s.StoreMarketQuotes(ctx, []marketdata.SequencedMarketWideMarketQuote{v})
}

// StoreMarketQuotes implements historystore.Store.
func (s *HistoricalDataStore) StoreMarketQuotes(ctx context.Context, vs []marketdata.SequencedMarketWideMarketQuote) error {
	return store(ctx, s, "store_market_quotes", marketQuoteTable, vs, historystore.MarketQuoteColumns)
}

// LoadBookQuotes implements historystore.Store.
func (s *HistoricalDataStore) LoadBookQuotes(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedBookQuote, error) {
	return load(ctx, s, "load_book_quotes", bookTable, securityIndex(q.Index), q.Range, q.SnapshotLimit, q.Filter, scanBookQuote)
}

// StoreBookQuote implements historystore.Store.
func (s *HistoricalDataStore) StoreBookQuote(ctx context.Context, v marketdata.SequencedSecurityBookQuote) error {
	return s.StoreBookQuotes(ctx, []marketdata.SequencedSecurityBookQuote{v})
}

// StoreBookQuotes implements historystore.Store.
func (s *HistoricalDataStore) StoreBookQuotes(ctx context.Context, vs []marketdata.SequencedSecurityBookQuote) error {
	return store(ctx, s, "store_book_quotes", bookTable, vs, historystore.BookQuoteColumns)
}

// LoadTimeAndSales implements historystore.Store.
func (s *HistoricalDataStore) LoadTimeAndSales(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedTimeAndSale, error) {
	return load(ctx, s, "load_time_and_sales", timeAndSaleTable, securityIndex(q.Index), q.Range, q.SnapshotLimit, q.Filter, scanTimeAndSale)
}

// StoreTimeAndSale implements historystore.Store.
func (s *HistoricalDataStore) StoreTimeAndSale(ctx context.Context, v marketdata.SequencedSecurityTimeAndSale) error {
	return s.StoreTimeAndSales(ctx, []marketdata.SequencedSecurityTimeAndSale{v})
}

// StoreTimeAndSales implements historystore.Store.
func (s *HistoricalDataStore) StoreTimeAndSales(ctx context.Context, vs []marketdata.SequencedSecurityTimeAndSale) error {
	return store(ctx, s, "store_time_and_sales", timeAndSaleTable, vs, historystore.TimeAndSaleColumns)
}

// LoadOrderImbalances implements historystore.Store.
func (s *HistoricalDataStore) LoadOrderImbalances(ctx context.Context, q query.MarketWideDataQuery) ([]marketdata.SequencedOrderImbalance, error) {
	return load(ctx, s, "load_order_imbalances", imbalanceTable, marketIndex(q.Index), q.Range, q.SnapshotLimit, q.Filter, scanOrderImbalance)
}

// StoreOrderImbalance implements historystore.Store.
func (s *HistoricalDataStore) StoreOrderImbalance(ctx context.Context, v marketdata.SequencedMarketWideOrderImbalance) error {
	return s.StoreOrderImbalances(ctx, []marketdata.SequencedMarketWideOrderImbalance{v})
}

// StoreOrderImbalances implements historystore.Store.
func (s *HistoricalDataStore) StoreOrderImbalances(ctx context.Context, vs []marketdata.SequencedMarketWideOrderImbalance) error {
	return store(ctx, s, "store_order_imbalances", imbalanceTable, vs, historystore.OrderImbalanceColumns)
}

// LoadSecurityInfo implements historystore.Store.
func (s *HistoricalDataStore) LoadSecurityInfo(ctx context.Context, q query.SecurityInfoQuery) (out []marketdata.SecurityInfo, err error) {
	const op = "load_security_info"
	start := time.Now()
	defer func() { s.observe(ctx, op, start, err) }()
	f, err := filterFragment(securityInfoTable, q.Filter)
	if err != nil {
		return nil, err
	}
	where := and(regionFragment(q.Index), anchorFragment(q.Anchor, q.SnapshotLimit), f)
	out, err = loadRows(ctx, s.reader, securityInfoTable, where, []string{"symbol", "country"}, q.SnapshotLimit, scanSecurityInfo)
	return out, wrap(op, err)
}

// StoreSecurityInfo implements historystore.Store.
func (s *HistoricalDataStore) StoreSecurityInfo(ctx context.Context, info marketdata.SecurityInfo) error {
	return store(ctx, s, "store_security_info", securityInfoTable, []marketdata.SecurityInfo{info}, historystore.SecurityInfoColumns)
}

// Close closes both pools.
func (s *HistoricalDataStore) Close() error {
	s.closeOnce.Do(func() {
		err := s.writer.Close()
		if s.reader != s.writer {
			err = errors.Join(err, s.reader.Close())
		}
		s.closeErr = err
	})
	return s.closeErr
}
