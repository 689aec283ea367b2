// Package storetest holds the conformance suite every historystore.Store
// implementation runs in its own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/chronicle/internal/domain/historystore"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/query"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/numeric"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) historystore.Store

var (
	// Base is the timestamp of the first fixture record.
	Base = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

	IBM  = region.Security{Symbol: "IBM", Venue: "XNYS", Country: "US"}
	GE   = region.Security{Symbol: "GE", Venue: "XNYS", Country: "US"}
	MSFT = region.Security{Symbol: "MSFT", Venue: "XNAS", Country: "US"}
	RY   = region.Security{Symbol: "RY", Venue: "XTSE", Country: "CA"}
)

// Bbo returns a BBO quote for sec at Base + seq seconds with a bid of seq.
func Bbo(sec region.Security, seq marketdata.Sequence) marketdata.SequencedSecurityBboQuote {
	bid := numeric.MoneyFromRaw(int64(seq) * numeric.Multiplier)
	q := marketdata.BboQuote{
		Bid:       marketdata.Quote{Price: bid, Size: numeric.QuantityFromInt(100), Side: marketdata.SideBid},
		Ask:       marketdata.Quote{Price: bid.Add(numeric.MustParseMoney("0.01")), Size: numeric.QuantityFromInt(200), Side: marketdata.SideAsk},
		Timestamp: Base.Add(time.Duration(seq) * time.Second),
	}
	return marketdata.Sequenced(marketdata.Indexed(q, sec), seq)
}

func values[T any](vs []marketdata.SequencedValue[T]) []marketdata.Sequence {
	out := make([]marketdata.Sequence, len(vs))
	for i, v := range vs {
		out[i] = v.Sequence
	}
	return out
}

func bboQuery(sec region.Security, r query.Range, limit query.SnapshotLimit) query.SecurityMarketDataQuery {
	q := query.NewQuery(sec)
	q.SetRange(r)
	q.SetSnapshotLimit(limit)
	return q
}

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(t *testing.T, s historystore.Store)
	}{
		{"SnapshotLimits", testSnapshotLimits},
		{"HeadTailAgreeOnFullRange", testHeadTailAgree},
		{"Ranges", testRanges},
		{"IndexIsolation", testIndexIsolation},
		{"Filters", testFilters},
		{"UnsupportedFilter", testUnsupportedFilter},
		{"DivisionByZeroIsNull", testDivisionByZero},
		{"MarketWideQueries", testMarketWide},
		{"BookQuotesAndPrints", testBookAndPrints},
		{"SecurityInfoUpsert", testSecurityInfoUpsert},
		{"SecurityInfoRegions", testSecurityInfoRegions},
		{"AnchorPagination", testAnchorPagination},
		{"NegativeLimitSelectsNothing", testNegativeLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func testSnapshotLimits(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	for seq := marketdata.Sequence(1); seq <= 3; seq++ {
		require.NoError(t, s.StoreBboQuote(ctx, Bbo(IBM, seq)))
	}

	head, err := s.LoadBboQuotes(ctx, bboQuery(IBM, query.Total(), query.FromHead(2)))
	require.NoError(t, err)
	require.Equal(t, []marketdata.Sequence{1, 2}, values(head))
	require.Equal(t, Bbo(IBM, 1).Value.Value, head[0].Value)

	tail, err := s.LoadBboQuotes(ctx, bboQuery(IBM, query.Total(), query.FromTail(2)))
	require.NoError(t, err)
	require.Equal(t, []marketdata.Sequence{2, 3}, values(tail))

	none, err := s.LoadBboQuotes(ctx, bboQuery(IBM, query.Total(), query.FromHead(0)))
	require.NoError(t, err)
	require.Empty(t, none)

	none, err = s.LoadBboQuotes(ctx, bboQuery(IBM, query.Total(), query.None()))
	require.NoError(t, err)
	require.Empty(t, none)
}

func testHeadTailAgree(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	batch := make([]marketdata.SequencedSecurityBboQuote, 0, 5)
	for seq := marketdata.Sequence(1); seq <= 5; seq++ {
		batch = append(batch, Bbo(IBM, seq))
	}
	require.NoError(t, s.StoreBboQuotes(ctx, batch))

	head, err := s.LoadBboQuotes(ctx, bboQuery(IBM, query.Total(), query.FromHead(10)))
	require.NoError(t, err)
	tail, err := s.LoadBboQuotes(ctx, bboQuery(IBM, query.Total(), query.FromTail(10)))
	require.NoError(t, err)
	all, err := s.LoadBboQuotes(ctx, bboQuery(IBM, query.Total(), query.Unlimited()))
	require.NoError(t, err)

	require.Len(t, head, 5)
	require.Equal(t, head, tail)
	require.Equal(t, head, all)
}

func testRanges(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	for seq := marketdata.Sequence(1); seq <= 6; seq++ {
		require.NoError(t, s.StoreBboQuote(ctx, Bbo(IBM, seq)))
	}

	bySeq, err := s.LoadBboQuotes(ctx, bboQuery(IBM, query.SequenceRange(2, 4), query.Unlimited()))
	require.NoError(t, err)
	require.Equal(t, []marketdata.Sequence{2, 3, 4}, values(bySeq))

	byTime, err := s.LoadBboQuotes(ctx, bboQuery(IBM,
		query.TimeRange(Base.Add(3*time.Second), Base.Add(5*time.Second)), query.Unlimited()))
	require.NoError(t, err)
	require.Equal(t, []marketdata.Sequence{3, 4, 5}, values(byTime))

	resumed, err := s.LoadBboQuotes(ctx, bboQuery(IBM,
		query.NewRange(query.AtSequence(5), query.AtTime(query.MaxTime)), query.Unlimited()))
	require.NoError(t, err)
	require.Equal(t, []marketdata.Sequence{5, 6}, values(resumed))

	tail, err := s.LoadBboQuotes(ctx, bboQuery(IBM, query.SequenceRange(1, 4), query.FromTail(2)))
	require.NoError(t, err)
	require.Equal(t, []marketdata.Sequence{3, 4}, values(tail))
}

func testIndexIsolation(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	require.NoError(t, s.StoreBboQuotes(ctx, []marketdata.SequencedSecurityBboQuote{
		Bbo(IBM, 1), Bbo(GE, 2), Bbo(IBM, 3), Bbo(RY, 4),
	}))

	ibm, err := s.LoadBboQuotes(ctx, bboQuery(IBM, query.Total(), query.Unlimited()))
	require.NoError(t, err)
	require.Equal(t, []marketdata.Sequence{1, 3}, values(ibm))

	msft, err := s.LoadBboQuotes(ctx, bboQuery(MSFT, query.Total(), query.Unlimited()))
	require.NoError(t, err)
	require.Empty(t, msft)
}

func testFilters(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	for seq := marketdata.Sequence(1); seq <= 5; seq++ {
		require.NoError(t, s.StoreBboQuote(ctx, Bbo(IBM, seq)))
	}

	q := bboQuery(IBM, query.Total(), query.Unlimited())
	q.SetFilter(query.And(
		query.Gt(query.Field("value", "bid", "price"), query.Const(numeric.MustParseMoney("2"))),
		query.Ne(query.Field("value", "sequence"), query.Const(marketdata.Sequence(4))),
	))
	got, err := s.LoadBboQuotes(ctx, q)
	require.NoError(t, err)
	require.Equal(t, []marketdata.Sequence{3, 5}, values(got))

	q.SetFilter(query.Lt(query.Field("value", "timestamp"), query.Const(Base.Add(2*time.Second))))
	q.SetSnapshotLimit(query.FromTail(5))
	got, err = s.LoadBboQuotes(ctx, q)
	require.NoError(t, err)
	require.Equal(t, []marketdata.Sequence{1}, values(got))
}

func testDivisionByZero(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	for seq := marketdata.Sequence(1); seq <= 3; seq++ {
		require.NoError(t, s.StoreBboQuote(ctx, Bbo(IBM, seq)))
	}
	spread := query.Sub(query.Field("value", "ask", "price"), query.Field("value", "ask", "price"))
	undefined := query.Gt(query.Div(query.Field("value", "bid", "price"), spread), query.Const(int64(0)))

	q := bboQuery(IBM, query.Total(), query.Unlimited())
	for _, filter := range []query.Expr{undefined, query.Negate(undefined)} {
		q.SetFilter(filter)
		got, err := s.LoadBboQuotes(ctx, q)
		require.NoError(t, err)
		require.Empty(t, got)
	}

	q.SetFilter(query.Or(undefined, query.Eq(query.Field("value", "sequence"), query.Const(marketdata.Sequence(2)))))
	got, err := s.LoadBboQuotes(ctx, q)
	require.NoError(t, err)
	require.Equal(t, []marketdata.Sequence{2}, values(got))
}

func testUnsupportedFilter(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	require.NoError(t, s.StoreBboQuote(ctx, Bbo(IBM, 1)))
	q := bboQuery(IBM, query.Total(), query.Unlimited())
	q.SetFilter(query.Eq(query.Field("value", "no_such_field"), query.Const(1)))
	_, err := s.LoadBboQuotes(ctx, q)
	require.ErrorIs(t, err, query.ErrUnsupportedExpression)
}

func testMarketWide(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	quote := func(market region.MarketCode, seq marketdata.Sequence) marketdata.SequencedMarketWideMarketQuote {
		q := marketdata.MarketQuote{
			Market:    market,
			Bid:       marketdata.Quote{Price: numeric.MustParseMoney("9.99"), Size: numeric.QuantityFromInt(1), Side: marketdata.SideBid},
			Ask:       marketdata.Quote{Price: numeric.MustParseMoney("10.01"), Size: numeric.QuantityFromInt(2), Side: marketdata.SideAsk},
			Timestamp: Base.Add(time.Duration(seq) * time.Millisecond),
		}
		return marketdata.Sequenced(marketdata.Indexed(q, market), seq)
	}
	require.NoError(t, s.StoreMarketQuotes(ctx, []marketdata.SequencedMarketWideMarketQuote{
		quote("XNYS", 1), quote("XNAS", 2), quote("XNYS", 3),
	}))
	mq := query.NewQuery[region.MarketCode]("XNYS")
	quotes, err := s.LoadMarketQuotes(ctx, mq)
	require.NoError(t, err)
	require.Equal(t, []marketdata.Sequence{1, 3}, values(quotes))
	require.Equal(t, quote("XNYS", 3).Value.Value, quotes[1].Value)

	imbalance := marketdata.OrderImbalance{
		Security:       IBM,
		Side:           marketdata.SideAsk,
		Size:           numeric.QuantityFromInt(5000),
		ReferencePrice: numeric.MustParseMoney("141.25"),
		Timestamp:      Base,
	}
	require.NoError(t, s.StoreOrderImbalance(ctx, marketdata.Sequenced(marketdata.Indexed(imbalance, region.MarketCode("XNYS")), 7)))
	imbalances, err := s.LoadOrderImbalances(ctx, mq)
	require.NoError(t, err)
	require.Equal(t, []marketdata.SequencedOrderImbalance{marketdata.Sequenced(imbalance, 7)}, imbalances)

	mq.SetFilter(query.Eq(query.Field("value", "security", "symbol"), query.Const("GE")))
	imbalances, err = s.LoadOrderImbalances(ctx, mq)
	require.NoError(t, err)
	require.Empty(t, imbalances)
}

func testBookAndPrints(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	book := marketdata.BookQuote{
		MPID:      "GSCO",
		IsPrimary: true,
		Market:    "XNYS",
		Quote:     marketdata.Quote{Price: numeric.MustParseMoney("141.2"), Size: numeric.QuantityFromInt(300), Side: marketdata.SideBid},
		Timestamp: Base,
	}
	require.NoError(t, s.StoreBookQuote(ctx, marketdata.Sequenced(marketdata.Indexed(book, IBM), 1)))
	other := book
	other.MPID = "MSCO"
	other.IsPrimary = false
	other.Quote.Side = marketdata.SideAsk
	require.NoError(t, s.StoreBookQuote(ctx, marketdata.Sequenced(marketdata.Indexed(other, IBM), 2)))

	q := query.NewQuery(IBM)
	books, err := s.LoadBookQuotes(ctx, q)
	require.NoError(t, err)
	require.Equal(t, []marketdata.SequencedBookQuote{marketdata.Sequenced(book, 1), marketdata.Sequenced(other, 2)}, books)

	q.SetFilter(query.Eq(query.Field("value", "is_primary"), query.Const(true)))
	books, err = s.LoadBookQuotes(ctx, q)
	require.NoError(t, err)
	require.Equal(t, []marketdata.Sequence{1}, values(books))

	sale := marketdata.TimeAndSale{
		Timestamp:    Base.Add(time.Microsecond),
		Price:        numeric.MustParseMoney("141.21"),
		Size:         numeric.QuantityFromInt(100),
		Condition:    marketdata.TradeCondition{Code: "@", Type: "regular"},
		MarketCenter: "XNYS",
		BuyerMPID:    "GSCO",
		SellerMPID:   "MSCO",
	}
	require.NoError(t, s.StoreTimeAndSales(ctx, []marketdata.SequencedSecurityTimeAndSale{
		marketdata.Sequenced(marketdata.Indexed(sale, IBM), 10),
	}))
	prints, err := s.LoadTimeAndSales(ctx, query.NewQuery(IBM))
	require.NoError(t, err)
	require.Equal(t, []marketdata.SequencedTimeAndSale{marketdata.Sequenced(sale, 10)}, prints)
}

func info(sec region.Security, name string) marketdata.SecurityInfo {
	return marketdata.SecurityInfo{Security: sec, Name: name, Sector: "Tech", BoardLot: numeric.QuantityFromInt(100)}
}

func testSecurityInfoUpsert(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	require.NoError(t, s.StoreSecurityInfo(ctx, info(IBM, "International Business Machines")))
	updated := info(IBM, "IBM Corp")
	updated.Sector = "Services"
	updated.BoardLot = numeric.QuantityFromInt(10)
	require.NoError(t, s.StoreSecurityInfo(ctx, updated))

	got, err := s.LoadSecurityInfo(ctx, query.NewSecurityInfoQuery(region.FromSecurity(IBM)))
	require.NoError(t, err)
	require.Equal(t, []marketdata.SecurityInfo{updated}, got)
}

func seedInfo(t *testing.T, s historystore.Store) {
	t.Helper()
	for _, sec := range []region.Security{RY, MSFT, IBM, GE} {
		require.NoError(t, s.StoreSecurityInfo(context.Background(), info(sec, sec.Symbol)))
	}
}

func symbols(infos []marketdata.SecurityInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Security.Symbol
	}
	return out
}

func testSecurityInfoRegions(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	seedInfo(t, s)
	load := func(r region.Region) []string {
		got, err := s.LoadSecurityInfo(ctx, query.NewSecurityInfoQuery(r))
		require.NoError(t, err)
		return symbols(got)
	}
	require.Equal(t, []string{"GE", "IBM", "MSFT", "RY"}, load(region.Global("Global")))
	require.Equal(t, []string{"GE", "IBM", "MSFT"}, load(region.FromCountry("US")))
	require.Equal(t, []string{"GE", "IBM"}, load(region.FromMarket(region.Market{Code: "XNYS", Country: "US"})))
	require.Equal(t, []string{"MSFT", "RY"}, load(region.FromSecurity(MSFT).WithCountry("CA")))
	require.Empty(t, load(region.FromCountry("JP")))

	q := query.NewSecurityInfoQuery(region.Global("Global"))
	q.SetFilter(query.Eq(query.Field("info", "security", "country"), query.Const("CA")))
	got, err := s.LoadSecurityInfo(ctx, q)
	require.NoError(t, err)
	require.Equal(t, []string{"RY"}, symbols(got))
}

func testAnchorPagination(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	seedInfo(t, s)

	q := query.NewSecurityInfoQuery(region.Global("Global"))
	q.SetSnapshotLimit(query.FromHead(1))
	var visited []string
	for {
		page, err := s.LoadSecurityInfo(ctx, q)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		require.Len(t, page, 1)
		if q.Anchor != nil {
			require.NotEqual(t, *q.Anchor, page[0].Security)
		}
		visited = append(visited, page[0].Security.Symbol)
		q.SetAnchor(page[0].Security)
	}
	require.Equal(t, []string{"GE", "IBM", "MSFT", "RY"}, visited)

	q.SetAnchor(MSFT)
	q.SetSnapshotLimit(query.FromTail(2))
	page, err := s.LoadSecurityInfo(ctx, q)
	require.NoError(t, err)
	require.Equal(t, []string{"GE", "IBM"}, symbols(page))
}

func testNegativeLimit(t *testing.T, s historystore.Store) {
	ctx := context.Background()
	require.NoError(t, s.StoreBboQuote(ctx, Bbo(IBM, 1)))
	seedInfo(t, s)

	for _, limit := range []query.SnapshotLimit{
		{Type: query.Head, Size: -1},
		{Type: query.Tail, Size: -5},
	} {
		got, err := s.LoadBboQuotes(ctx, bboQuery(IBM, query.Total(), limit))
		require.NoError(t, err)
		require.Empty(t, got)

		q := query.NewSecurityInfoQuery(region.Global("Global"))
		q.SetSnapshotLimit(limit)
		infos, err := s.LoadSecurityInfo(ctx, q)
		require.NoError(t, err)
		require.Empty(t, infos)
	}
}
