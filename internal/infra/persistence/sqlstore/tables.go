package sqlstore

import (
	"strings"
	"time"

	"github.com/coachpo/chronicle/internal/domain/historystore"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/infra/persistence"
	"github.com/coachpo/chronicle/internal/numeric"
)

// table describes one market data table. Column names come from the historystore
// flattening so the in-memory and SQL stores filter over the same fields.
type table struct {
	name       string
	columns    []string
	key        []string
	translator Translator
	insertSQL  string
}

func newTable(name string, columns historystore.Columns, key ...string) table {
	names := columns.Names()
	return table{
		name:       name,
		columns:    names,
		key:        key,
		translator: NewTranslator(names),
		insertSQL:  upsertSQL(name, names, key),
	}
}

func (t table) selectList() string { return strings.Join(t.columns, ", ") }

// upsertSQL renders an INSERT that replaces the row sharing key. Both SQLite and
// PostgreSQL accept ON CONFLICT ... DO UPDATE with the excluded pseudo table.
func upsertSQL(name string, columns, key []string) string {
	keys := make(map[string]struct{}, len(key))
	for _, k := range key {
		keys[k] = struct{}{}
	}
	var b strings.Builder
	b.WriteString("INSERT INTO " + name + " (" + strings.Join(columns, ", ") + ") VALUES (")
	b.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))
	b.WriteString(") ON CONFLICT (" + strings.Join(key, ", ") + ") DO UPDATE SET ")
	first := true
	for _, c := range columns {
		if _, isKey := keys[c]; isKey {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(c + " = excluded." + c)
	}
	return b.String()
}

var (
	bboTable = newTable("bbo_quotes",
		historystore.BboQuoteColumns(marketdata.SequencedSecurityBboQuote{}), "symbol", "country", "sequence")
	marketQuoteTable = newTable("market_quotes",
		historystore.MarketQuoteColumns(marketdata.SequencedMarketWideMarketQuote{}), "market", "sequence")
	bookTable = newTable("book_quotes",
		historystore.BookQuoteColumns(marketdata.SequencedSecurityBookQuote{}), "symbol", "country", "sequence")
	timeAndSaleTable = newTable("time_and_sales",
		historystore.TimeAndSaleColumns(marketdata.SequencedSecurityTimeAndSale{}), "symbol", "country", "sequence")
	imbalanceTable = newTable("order_imbalances",
		historystore.OrderImbalanceColumns(marketdata.SequencedMarketWideOrderImbalance{}), "market", "sequence")
	securityInfoTable = newTable("security_info",
		historystore.SecurityInfoColumns(marketdata.SecurityInfo{}), "symbol", "country")
)

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// Scanners read rows selected with table.selectList.

func scanBboQuote(rows persistence.Rows) (marketdata.SequencedBboQuote, error) {
	var (
		symbol, country, venue               string
		bidPrice, bidSize, askPrice, askSize int64
		timestamp, sequence                  int64
	)
	if err := rows.Scan(&symbol, &country, &venue, &bidPrice, &bidSize, &askPrice, &askSize, &timestamp, &sequence); err != nil {
		return marketdata.SequencedBboQuote{}, err
	}
	q := marketdata.BboQuote{
		Bid:       quote(bidPrice, bidSize, marketdata.SideBid),
		Ask:       quote(askPrice, askSize, marketdata.SideAsk),
		Timestamp: fromNanos(timestamp),
	}
	return marketdata.Sequenced(q, marketdata.Sequence(sequence)), nil
}

func scanMarketQuote(rows persistence.Rows) (marketdata.SequencedMarketQuote, error) {
	var (
		market                               string
		bidPrice, bidSize, askPrice, askSize int64
		timestamp, sequence                  int64
	)
	if err := rows.Scan(&market, &bidPrice, &bidSize, &askPrice, &askSize, &timestamp, &sequence); err != nil {
		return marketdata.SequencedMarketQuote{}, err
	}
	q := marketdata.MarketQuote{
		Market:    region.MarketCode(market),
		Bid:       quote(bidPrice, bidSize, marketdata.SideBid),
		Ask:       quote(askPrice, askSize, marketdata.SideAsk),
		Timestamp: fromNanos(timestamp),
	}
	return marketdata.Sequenced(q, marketdata.Sequence(sequence)), nil
}

func scanBookQuote(rows persistence.Rows) (marketdata.SequencedBookQuote, error) {
	var (
		symbol, country, venue, mpid, market string
		isPrimary                            bool
		price, size, side                    int64
		timestamp, sequence                  int64
	)
	if err := rows.Scan(&symbol, &country, &venue, &mpid, &isPrimary, &market, &price, &size, &side, &timestamp, &sequence); err != nil {
		return marketdata.SequencedBookQuote{}, err
	}
	q := marketdata.BookQuote{
		MPID:      mpid,
		IsPrimary: isPrimary,
		Market:    region.MarketCode(market),
		Quote:     quote(price, size, marketdata.Side(side)),
		Timestamp: fromNanos(timestamp),
	}
	return marketdata.Sequenced(q, marketdata.Sequence(sequence)), nil
}

func scanTimeAndSale(rows persistence.Rows) (marketdata.SequencedTimeAndSale, error) {
	var (
		symbol, country, venue            string
		price, size                       int64
		code, kind, center, buyer, seller string
		timestamp, sequence               int64
	)
	if err := rows.Scan(&symbol, &country, &venue, &price, &size, &code, &kind, &center, &buyer, &seller, &timestamp, &sequence); err != nil {
		return marketdata.SequencedTimeAndSale{}, err
	}
	t := marketdata.TimeAndSale{
		Timestamp:    fromNanos(timestamp),
		Price:        numeric.MoneyFromRaw(price),
		Size:         numeric.QuantityFromRaw(size),
		Condition:    marketdata.TradeCondition{Code: code, Type: kind},
		MarketCenter: center,
		BuyerMPID:    buyer,
		SellerMPID:   seller,
	}
	return marketdata.Sequenced(t, marketdata.Sequence(sequence)), nil
}

func scanOrderImbalance(rows persistence.Rows) (marketdata.SequencedOrderImbalance, error) {
	var (
		market, symbol, country, venue string
		side, size, referencePrice     int64
		timestamp, sequence            int64
	)
	if err := rows.Scan(&market, &symbol, &country, &venue, &side, &size, &referencePrice, &timestamp, &sequence); err != nil {
		return marketdata.SequencedOrderImbalance{}, err
	}
	o := marketdata.OrderImbalance{
		Security:       region.Security{Symbol: symbol, Country: region.CountryCode(country), Venue: region.MarketCode(venue)},
		Side:           marketdata.Side(side),
		Size:           numeric.QuantityFromRaw(size),
		ReferencePrice: numeric.MoneyFromRaw(referencePrice),
		Timestamp:      fromNanos(timestamp),
	}
	return marketdata.Sequenced(o, marketdata.Sequence(sequence)), nil
}

func scanSecurityInfo(rows persistence.Rows) (marketdata.SecurityInfo, error) {
	var (
		symbol, country, venue, name, sector string
		boardLot                             int64
	)
	if err := rows.Scan(&symbol, &country, &venue, &name, &sector, &boardLot); err != nil {
		return marketdata.SecurityInfo{}, err
	}
	return marketdata.SecurityInfo{
		Security: region.Security{Symbol: symbol, Country: region.CountryCode(country), Venue: region.MarketCode(venue)},
		Name:     name,
		Sector:   sector,
		BoardLot: numeric.QuantityFromRaw(boardLot),
	}, nil
}

func quote(price, size int64, side marketdata.Side) marketdata.Quote {
	return marketdata.Quote{Price: numeric.MoneyFromRaw(price), Size: numeric.QuantityFromRaw(size), Side: side}
}
