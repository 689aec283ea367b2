package query

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/numeric"
)

func TestSnapshotLimitConstructors(t *testing.T) {
	require.Equal(t, SnapshotLimit{Type: Head, Size: math.MaxInt}, Unlimited())
	require.True(t, Unlimited().IsUnlimited())
	require.Equal(t, SnapshotLimit{Type: Head}, None())
	require.Equal(t, SnapshotLimit{Type: Tail, Size: 0}, FromTail(-3))
	require.Equal(t, "tail(2)", FromTail(2).String())
	require.Equal(t, "head(5)", FromHead(5).String())
}

func TestRangeContains(t *testing.T) {
	base := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	require.True(t, Total().IsTotal())
	require.True(t, Total().Contains(base, 42))
	require.False(t, RealTime().IsTotal())
	require.True(t, RealTime().Contains(base, 0))

	byTime := TimeRange(base, base.Add(time.Minute))
	require.True(t, byTime.Contains(base, 1))
	require.True(t, byTime.Contains(base.Add(time.Minute), 1))
	require.False(t, byTime.Contains(base.Add(-time.Nanosecond), 1))

	bySeq := SequenceRange(5, 7)
	require.True(t, bySeq.Contains(base, 7))
	require.False(t, bySeq.Contains(base, 8))

	mixed := NewRange(AtSequence(3), AtTime(base))
	require.True(t, mixed.Contains(base, 3))
	require.False(t, mixed.Contains(base.Add(time.Second), 3))
}

func TestQueryBuilders(t *testing.T) {
	sec := region.Security{Symbol: "IBM", Venue: "XNYS", Country: "US"}
	current := BuildCurrentQuery(sec)
	require.Equal(t, FromTail(1), current.SnapshotLimit)
	require.Equal(t, RealTime(), current.Range)

	q := NewQuery(sec)
	q.SetSnapshotLimit(FromHead(2))
	q.SetInterruptionPolicy(RecoverData)
	q.SetFilter(Gt(Field("value", "bid", "price"), Const(numeric.MustParseMoney("1"))))
	require.Equal(t, FromHead(2), q.SnapshotLimit)
	require.Equal(t, RecoverData, q.InterruptionPolicy)
	require.NotNil(t, q.Filter)

	info := NewSecurityInfoQuery(region.FromCountry("US"))
	info.SetAnchor(sec)
	require.Equal(t, &sec, info.Anchor)
	info.ClearAnchor()
	require.Nil(t, info.Anchor)
}

func TestColumnOfCollapsesVirtualMembers(t *testing.T) {
	cases := map[string]Expr{
		"bid_price": Field("value", "bid", "price"),
		"venue":     Field("order", "fields", "security", "venue"),
		"order_id":  Field("info", "fields", "order_id"),
		"price":     Field("value", "quote", "price"),
		"timestamp": Field("value", "timestamp"),
	}
	for want, e := range cases {
		got, err := ColumnOf(e)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ColumnOf(Field("value", "security"))
	require.ErrorIs(t, err, ErrUnsupportedExpression)
	_, err = ColumnOf(Member{Of: Const(1), Name: "x"})
	require.ErrorIs(t, err, ErrUnsupportedExpression)
}

func TestNormalize(t *testing.T) {
	ts := time.Unix(10, 5)
	for in, want := range map[any]any{
		numeric.MustParseMoney("1.5"): int64(1_500_000),
		numeric.QuantityFromInt(2):    int64(2_000_000),
		marketdata.Sequence(9):        int64(9),
		region.MarketCode("XNYS"):     "XNYS",
		marketdata.SideAsk:            int64(marketdata.SideAsk),
		7:                             int64(7),
		"s":                           "s",
	} {
		got, err := Normalize(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	got, err := Normalize(ts)
	require.NoError(t, err)
	require.Equal(t, ts.UnixNano(), got)

	_, err = Normalize(struct{}{})
	require.True(t, errors.Is(err, ErrUnsupportedExpression))
}

func TestMatches(t *testing.T) {
	row := Row{
		"bid_price":  numeric.MustParseMoney("10").Raw(),
		"ask_price":  numeric.MustParseMoney("10.5").Raw(),
		"symbol":     "IBM",
		"is_primary": true,
	}
	match := func(e Expr) bool {
		ok, err := Matches(e, row)
		require.NoError(t, err)
		return ok
	}
	require.True(t, match(nil))
	require.True(t, match(Eq(Field("value", "security", "symbol"), Const("IBM"))))
	require.True(t, match(And(
		Ge(Field("value", "bid", "price"), Const(numeric.MustParseMoney("10"))),
		Lt(Sub(Field("value", "ask", "price"), Field("value", "bid", "price")), Const(numeric.MustParseMoney("1"))),
	)))
	require.False(t, match(Negate(Field("value", "is_primary"))))
	require.True(t, match(Or(Const(false), Ne(Field("value", "symbol"), Const("GE")))))
	require.True(t, match(And()))

	_, err := Matches(Field("value", "missing"), row)
	require.ErrorIs(t, err, ErrUnsupportedExpression)
	_, err = Matches(Const(int64(1)), row)
	require.ErrorIs(t, err, ErrUnsupportedExpression)
	_, err = Matches(Lt(Const("a"), Const(int64(1))), row)
	require.ErrorIs(t, err, ErrUnsupportedExpression)
}

func TestDivisionByZeroIsNull(t *testing.T) {
	row := Row{"bid_price": int64(10), "ask_price": int64(0), "ratio": 1.5}

	v, err := Evaluate(Div(Field("value", "bid_price"), Field("value", "ask_price")), row)
	require.NoError(t, err)
	require.Nil(t, v)
	v, err = Evaluate(Div(Field("value", "ratio"), Const(0.0)), row)
	require.NoError(t, err)
	require.Nil(t, v)

	null := Eq(Div(Field("value", "bid_price"), Field("value", "ask_price")), Const(int64(1)))
	cases := []struct {
		name   string
		filter Expr
		want   bool
	}{
		{"comparison", null, false},
		{"not", Negate(null), false},
		{"and false", And(null, Const(false)), false},
		{"and true", And(null, Const(true)), false},
		{"or true", Or(null, Const(true)), true},
		{"or false", Or(null, Const(false)), false},
		{"not of or false", Negate(Or(null, Const(false))), false},
		{"not of and false", Negate(And(Const(false), null)), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Matches(tc.filter, row)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	_, err = Matches(And(null, Const("x")), row)
	require.ErrorIs(t, err, ErrUnsupportedExpression)
}
