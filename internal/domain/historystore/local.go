package historystore

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/query"
	"github.com/coachpo/chronicle/internal/domain/region"
)

type entry[V marketdata.Timestamped] struct {
	value    V
	sequence marketdata.Sequence
	columns  query.Row
}

// series holds the records of every index of one kind, each sorted by sequence.
type series[K comparable, V marketdata.Timestamped] struct {
	byIndex map[K][]entry[V]
}

func newSeries[K comparable, V marketdata.Timestamped]() series[K, V] {
	return series[K, V]{byIndex: make(map[K][]entry[V])}
}

// put inserts e keeping sequence order. A record with the same sequence is replaced.
func (s series[K, V]) put(key K, e entry[V]) {
	records := s.byIndex[key]
	i := sort.Search(len(records), func(i int) bool { return records[i].sequence >= e.sequence })
	if i < len(records) && records[i].sequence == e.sequence {
		records[i] = e
		return
	}
	s.byIndex[key] = slices.Insert(records, i, e)
}

func (s series[K, V]) load(key K, r query.Range, limit query.SnapshotLimit, filter query.Expr) ([]marketdata.SequencedValue[V], error) {
	records := s.byIndex[key]
	if limit.Size <= 0 || len(records) == 0 {
		return []marketdata.SequencedValue[V]{}, nil
	}
	out := make([]marketdata.SequencedValue[V], 0, min(limit.Size, len(records)))
	visit := func(e entry[V]) (bool, error) {
		if !r.Contains(e.value.GetTimestamp(), e.sequence) {
			return true, nil
		}
		ok, err := query.Matches(filter, e.columns)
		if err != nil {
			return false, err
		}
		if ok {
			out = append(out, marketdata.Sequenced(e.value, e.sequence))
		}
		return len(out) < limit.Size, nil
	}
	if limit.Type == query.Tail {
		for i := len(records) - 1; i >= 0; i-- {
			more, err := visit(records[i])
			if err != nil {
				return nil, err
			}
			if !more {
				break
			}
		}
		slices.Reverse(out)
		return out, nil
	}
	for _, e := range records {
		more, err := visit(e)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return out, nil
}

// LocalStore is an in-memory Store with the same query semantics as the SQL store.
type LocalStore struct {
	mu         sync.RWMutex
	closed     bool
	bbo        series[region.SecurityKey, marketdata.BboQuote]
	market     series[region.MarketCode, marketdata.MarketQuote]
	book       series[region.SecurityKey, marketdata.BookQuote]
	prints     series[region.SecurityKey, marketdata.TimeAndSale]
	imbalances series[region.MarketCode, marketdata.OrderImbalance]
	info       map[region.SecurityKey]marketdata.SecurityInfo
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore returns an empty in-memory store.
func NewLocalStore() *LocalStore {
	return &LocalStore{
		bbo:        newSeries[region.SecurityKey, marketdata.BboQuote](),
		market:     newSeries[region.MarketCode, marketdata.MarketQuote](),
		book:       newSeries[region.SecurityKey, marketdata.BookQuote](),
		prints:     newSeries[region.SecurityKey, marketdata.TimeAndSale](),
		imbalances: newSeries[region.MarketCode, marketdata.OrderImbalance](),
		info:       make(map[region.SecurityKey]marketdata.SecurityInfo),
	}
}

func (s *LocalStore) read(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return IOError("load", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn()
}

func (s *LocalStore) write(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return IOError("store", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	fn()
	return nil
}

// LoadBboQuotes implements Store.
func (s *LocalStore) LoadBboQuotes(ctx context.Context, q query.SecurityMarketDataQuery) (out []marketdata.SequencedBboQuote, err error) {
	err = s.read(ctx, func() error {
		out, err = s.bbo.load(q.Index.Key(), q.Range, q.SnapshotLimit, q.Filter)
		return err
	})
	return out, err
}

// StoreBboQuote implements Store.
func (s *LocalStore) StoreBboQuote(ctx context.Context, v marketdata.SequencedSecurityBboQuote) error {
	return s.StoreBboQuotes(ctx, []marketdata.SequencedSecurityBboQuote{v})
}

// StoreBboQuotes implements Store.
func (s *LocalStore) StoreBboQuotes(ctx context.Context, vs []marketdata.SequencedSecurityBboQuote) error {
	return s.write(ctx, func() {
		for _, v := range vs {
			s.bbo.put(v.Value.Index.Key(), entry[marketdata.BboQuote]{
				value: v.Value.Value, sequence: v.Sequence, columns: BboQuoteColumns(v).Row(),
			})
		}
	})
}

// LoadMarketQuotes implements Store.
func (s *LocalStore) LoadMarketQuotes(ctx context.Context, q query.MarketWideDataQuery) (out []marketdata.SequencedMarketQuote, err error) {
	err = s.read(ctx, func() error {
		out, err = s.market.load(q.Index, q.Range, q.SnapshotLimit, q.Filter)
		return err
	})
	return out, err
}

// StoreMarketQuote implements Store.
func (s *LocalStore) StoreMarketQuote(ctx context.Context, v marketdata.SequencedMarketWideMarketQuote) error {
	return s.StoreMarketQuotes(ctx, []marketdata.SequencedMarketWideMarketQuote{v})
}

// StoreMarketQuotes implements Store.
func (s *LocalStore) StoreMarketQuotes(ctx context.Context, vs []marketdata.SequencedMarketWideMarketQuote) error {
	return s.write(ctx, func() {
		for _, v := range vs {
			s.market.put(v.Value.Index, entry[marketdata.MarketQuote]{
				value: v.Value.Value, sequence: v.Sequence, columns: MarketQuoteColumns(v).Row(),
			})
		}
	})
}

// LoadBookQuotes implements Store.
func (s *LocalStore) LoadBookQuotes(ctx context.Context, q query.SecurityMarketDataQuery) (out []marketdata.SequencedBookQuote, err error) {
	err = s.read(ctx, func() error {
		out, err = s.book.load(q.Index.Key(), q.Range, q.SnapshotLimit, q.Filter)
		return err
	})
	return out, err
}

// StoreBookQuote implements Store.
func (s *LocalStore) StoreBookQuote(ctx context.Context, v marketdata.SequencedSecurityBookQuote) error {
	return s.StoreBookQuotes(ctx, []marketdata.SequencedSecurityBookQuote{v})
}

// StoreBookQuotes implements Store.
func (s *LocalStore) StoreBookQuotes(ctx context.Context, vs []marketdata.SequencedSecurityBookQuote) error {
	return s.write(ctx, func() {
		for _, v := range vs {
			s.book.put(v.Value.Index.Key(), entry[marketdata.BookQuote]{
				value: v.Value.Value, sequence: v.Sequence, columns: BookQuoteColumns(v).Row(),
			})
		}
	})
}

// LoadTimeAndSales implements Store.
func (s *LocalStore) LoadTimeAndSales(ctx context.Context, q query.SecurityMarketDataQuery) (out []marketdata.SequencedTimeAndSale, err error) {
	err = s.read(ctx, func() error {
		out, err = s.prints.load(q.Index.Key(), q.Range, q.SnapshotLimit, q.Filter)
		return err
	})
	return out, err
}

// StoreTimeAndSale implements Store.
func (s *LocalStore) StoreTimeAndSale(ctx context.Context, v marketdata.SequencedSecurityTimeAndSale) error {
	return s.StoreTimeAndSales(ctx, []marketdata.SequencedSecurityTimeAndSale{v})
}

// StoreTimeAndSales implements Store.
func (s *LocalStore) StoreTimeAndSales(ctx context.Context, vs []marketdata.SequencedSecurityTimeAndSale) error {
	return s.write(ctx, func() {
		for _, v := range vs {
			s.prints.put(v.Value.Index.Key(), entry[marketdata.TimeAndSale]{
				value: v.Value.Value, sequence: v.Sequence, columns: TimeAndSaleColumns(v).Row(),
			})
		}
	})
}

// LoadOrderImbalances implements Store.
func (s *LocalStore) LoadOrderImbalances(ctx context.Context, q query.MarketWideDataQuery) (out []marketdata.SequencedOrderImbalance, err error) {
	err = s.read(ctx, func() error {
		out, err = s.imbalances.load(q.Index, q.Range, q.SnapshotLimit, q.Filter)
		return err
	})
	return out, err
}

// StoreOrderImbalance implements Store.
func (s *LocalStore) StoreOrderImbalance(ctx context.Context, v marketdata.SequencedMarketWideOrderImbalance) error {
	return s.StoreOrderImbalances(ctx, []marketdata.SequencedMarketWideOrderImbalance{v})
}

// StoreOrderImbalances implements Store.
func (s *LocalStore) StoreOrderImbalances(ctx context.Context, vs []marketdata.SequencedMarketWideOrderImbalance) error {
	return s.write(ctx, func() {
		for _, v := range vs {
			s.imbalances.put(v.Value.Index, entry[marketdata.OrderImbalance]{
				value: v.Value.Value, sequence: v.Sequence, columns: OrderImbalanceColumns(v).Row(),
			})
		}
	})
}

// LoadSecurityInfo implements Store.
func (s *LocalStore) LoadSecurityInfo(ctx context.Context, q query.SecurityInfoQuery) (out []marketdata.SecurityInfo, err error) {
	err = s.read(ctx, func() error {
		candidates := make([]marketdata.SecurityInfo, 0, len(s.info))
		for _, info := range s.info {
			if !q.Index.ContainsSecurity(info.Security) {
				continue
			}
			if q.Anchor != nil {
				c := info.Security.Compare(*q.Anchor)
				if (q.SnapshotLimit.Type == query.Tail && c >= 0) || (q.SnapshotLimit.Type == query.Head && c <= 0) {
					continue
				}
			}
			ok, err := query.Matches(q.Filter, SecurityInfoColumns(info).Row())
			if err != nil {
				return err
			}
			if ok {
				candidates = append(candidates, info)
			}
		}
		slices.SortFunc(candidates, func(a, b marketdata.SecurityInfo) int {
			return a.Security.Compare(b.Security)
		})
		n := min(max(q.SnapshotLimit.Size, 0), len(candidates))
		if q.SnapshotLimit.Type == query.Tail {
			out = candidates[len(candidates)-n:]
		} else {
			out = candidates[:n]
		}
		return nil
	})
	return out, err
}

// StoreSecurityInfo implements Store.
func (s *LocalStore) StoreSecurityInfo(ctx context.Context, info marketdata.SecurityInfo) error {
	return s.write(ctx, func() {
		s.info[info.Security.Key()] = info
	})
}

// Close releases the store. Later calls fail with ErrClosed.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
