package historystore

import (
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/query"
	"github.com/coachpo/chronicle/internal/domain/region"
)

// Column is one flattened field of a stored record. Values are normalized the way
// query.Normalize maps constants: fixed point amounts are raw int64, instants are unix
// nanoseconds, enums are int64 and codes are strings.
type Column struct {
	Name  string
	Value any
}

// Columns is a flattened record in storage order.
type Columns []Column

// Names returns the column names in order.
func (c Columns) Names() []string {
	out := make([]string, len(c))
	for i, col := range c {
		out[i] = col.Name
	}
	return out
}

// Values returns the column values in order.
func (c Columns) Values() []any {
	out := make([]any, len(c))
	for i, col := range c {
		out[i] = col.Value
	}
	return out
}

// Row returns the columns keyed by name for filter evaluation.
func (c Columns) Row() query.Row {
	row := make(query.Row, len(c))
	for _, col := range c {
		row[col.Name] = col.Value
	}
	return row
}

func securityColumns(s region.Security) Columns {
	return Columns{
		{"symbol", s.Symbol},
		{"country", string(s.Country)},
		{"venue", string(s.Venue)},
	}
}

func quoteColumns(prefix string, q marketdata.Quote) Columns {
	return Columns{
		{prefix + "price", q.Price.Raw()},
		{prefix + "size", q.Size.Raw()},
	}
}

func tail(v marketdata.Timestamped, seq marketdata.Sequence) Columns {
	return Columns{
		{"timestamp", v.GetTimestamp().UnixNano()},
		{"sequence", int64(seq)},
	}
}

// BboQuoteColumns flattens a stored BBO quote.
func BboQuoteColumns(v marketdata.SequencedSecurityBboQuote) Columns {
	q := v.Value.Value
	cols := securityColumns(v.Value.Index)
	cols = append(cols, quoteColumns("bid_", q.Bid)...)
	cols = append(cols, quoteColumns("ask_", q.Ask)...)
	return append(cols, tail(q, v.Sequence)...)
}

// MarketQuoteColumns flattens a stored market quote. The market column is the index.
func MarketQuoteColumns(v marketdata.SequencedMarketWideMarketQuote) Columns {
	q := v.Value.Value
	cols := Columns{{"market", string(v.Value.Index)}}
	cols = append(cols, quoteColumns("bid_", q.Bid)...)
	cols = append(cols, quoteColumns("ask_", q.Ask)...)
	return append(cols, tail(q, v.Sequence)...)
}

// BookQuoteColumns flattens a stored book quote.
func BookQuoteColumns(v marketdata.SequencedSecurityBookQuote) Columns {
	q := v.Value.Value
	cols := securityColumns(v.Value.Index)
	cols = append(cols,
		Column{"mpid", q.MPID},
		Column{"is_primary", q.IsPrimary},
		Column{"market", string(q.Market)},
	)
	cols = append(cols, quoteColumns("", q.Quote)...)
	cols = append(cols, Column{"side", int64(q.Quote.Side)})
	return append(cols, tail(q, v.Sequence)...)
}

// TimeAndSaleColumns flattens a stored print.
func TimeAndSaleColumns(v marketdata.SequencedSecurityTimeAndSale) Columns {
	t := v.Value.Value
	cols := securityColumns(v.Value.Index)
	cols = append(cols,
		Column{"price", t.Price.Raw()},
		Column{"size", t.Size.Raw()},
		Column{"condition_code", t.Condition.Code},
		Column{"condition_type", t.Condition.Type},
		Column{"market_center", t.MarketCenter},
		Column{"buyer_mpid", t.BuyerMPID},
		Column{"seller_mpid", t.SellerMPID},
	)
	return append(cols, tail(t, v.Sequence)...)
}

// OrderImbalanceColumns flattens a stored order imbalance. The market column is the
// index.
func OrderImbalanceColumns(v marketdata.SequencedMarketWideOrderImbalance) Columns {
	o := v.Value.Value
	cols := Columns{{"market", string(v.Value.Index)}}
	cols = append(cols, securityColumns(o.Security)...)
	cols = append(cols,
		Column{"side", int64(o.Side)},
		Column{"size", o.Size.Raw()},
		Column{"reference_price", o.ReferencePrice.Raw()},
	)
	return append(cols, tail(o, v.Sequence)...)
}

// SecurityInfoColumns flattens reference data.
func SecurityInfoColumns(info marketdata.SecurityInfo) Columns {
	cols := securityColumns(info.Security)
	return append(cols,
		Column{"name", info.Name},
		Column{"sector", info.Sector},
		Column{"board_lot", info.BoardLot.Raw()},
	)
}
