// Package marketdata defines the recorded market data kinds and their sequencing
// envelopes.
package marketdata

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/numeric"
)

// Sequence totally orders the records of a single index, including records that share
// a timestamp.
type Sequence uint64

const (
	// FirstSequence precedes every stored sequence.
	FirstSequence Sequence = 0
	// LastSequence follows every stored sequence. It fits a signed 64-bit column.
	LastSequence Sequence = math.MaxInt64
)

// Increment returns the next sequence, saturating at LastSequence.
func (s Sequence) Increment() Sequence {
	if s >= LastSequence {
		return LastSequence
	}
	return s + 1
}

// Decrement returns the previous sequence, saturating at FirstSequence.
func (s Sequence) Decrement() Sequence {
	if s == FirstSequence {
		return FirstSequence
	}
	return s - 1
}

// Side of a quote or imbalance.
type Side int8

const (
	SideNone Side = iota
	SideBid
	SideAsk
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "BID"
	case SideAsk:
		return "ASK"
	default:
		return "NONE"
	}
}

// Quote is one side of a book.
type Quote struct {
	Price numeric.Money    `json:"price"`
	Size  numeric.Quantity `json:"size"`
	Side  Side             `json:"side"`
}

// Timestamped is implemented by every record kind carrying an event time.
type Timestamped interface {
	GetTimestamp() time.Time
}

// Restampable is a Timestamped record that can be copied with a new event time.
type Restampable[T any] interface {
	Timestamped
	WithTimestamp(time.Time) T
}

// BboQuote is the best bid and offer of a security.
type BboQuote struct {
	Bid       Quote     `json:"bid"`
	Ask       Quote     `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
}

// GetTimestamp implements Timestamped.
func (q BboQuote) GetTimestamp() time.Time { return q.Timestamp }

// WithTimestamp returns a copy of q stamped at ts.
func (q BboQuote) WithTimestamp(ts time.Time) BboQuote {
	q.Timestamp = ts
	return q
}

// MarketQuote is the best bid and offer posted by a single market.
type MarketQuote struct {
	Market    region.MarketCode `json:"market"`
	Bid       Quote             `json:"bid"`
	Ask       Quote             `json:"ask"`
	Timestamp time.Time         `json:"timestamp"`
}

// GetTimestamp implements Timestamped.
func (q MarketQuote) GetTimestamp() time.Time { return q.Timestamp }

// WithTimestamp returns a copy of q stamped at ts.
func (q MarketQuote) WithTimestamp(ts time.Time) MarketQuote {
	q.Timestamp = ts
	return q
}

// BookQuote is a book level attributed to a market participant.
type BookQuote struct {
	MPID      string            `json:"mpid"`
	IsPrimary bool              `json:"is_primary"`
	Market    region.MarketCode `json:"market"`
	Quote     Quote             `json:"quote"`
	Timestamp time.Time         `json:"timestamp"`
}

// GetTimestamp implements Timestamped.
func (q BookQuote) GetTimestamp() time.Time { return q.Timestamp }

// WithTimestamp returns a copy of q stamped at ts.
func (q BookQuote) WithTimestamp(ts time.Time) BookQuote {
	q.Timestamp = ts
	return q
}

// TradeCondition qualifies a print.
type TradeCondition struct {
	Code string `json:"code"`
	Type string `json:"type"`
}

// TimeAndSale is a single print.
type TimeAndSale struct {
	Timestamp    time.Time        `json:"timestamp"`
	Price        numeric.Money    `json:"price"`
	Size         numeric.Quantity `json:"size"`
	Condition    TradeCondition   `json:"condition"`
	MarketCenter string           `json:"market_center"`
	BuyerMPID    string           `json:"buyer_mpid"`
	SellerMPID   string           `json:"seller_mpid"`
}

// GetTimestamp implements Timestamped.
func (t TimeAndSale) GetTimestamp() time.Time { return t.Timestamp }

// WithTimestamp returns a copy of t stamped at ts.
func (t TimeAndSale) WithTimestamp(ts time.Time) TimeAndSale {
	t.Timestamp = ts
	return t
}

// OrderImbalance is an auction imbalance announced by a market.
type OrderImbalance struct {
	Security       region.Security  `json:"security"`
	Side           Side             `json:"side"`
	Size           numeric.Quantity `json:"size"`
	ReferencePrice numeric.Money    `json:"reference_price"`
	Timestamp      time.Time        `json:"timestamp"`
}

// GetTimestamp implements Timestamped.
func (o OrderImbalance) GetTimestamp() time.Time { return o.Timestamp }

// WithTimestamp returns a copy of o stamped at ts.
func (o OrderImbalance) WithTimestamp(ts time.Time) OrderImbalance {
	o.Timestamp = ts
	return o
}

// SecurityInfo is the reference data of a security. Identity is (symbol, country).
type SecurityInfo struct {
	Security region.Security  `json:"security"`
	Name     string           `json:"name"`
	Sector   string           `json:"sector"`
	BoardLot numeric.Quantity `json:"board_lot"`
}

// SequencedValue tags a value with its sequence.
type SequencedValue[T any] struct {
	Value    T
	Sequence Sequence
}

// IndexedValue tags a value with the index it is stored under.
type IndexedValue[T any, I comparable] struct {
	Value T
	Index I
}

// Sequenced returns a SequencedValue carrying v.
func Sequenced[T any](v T, seq Sequence) SequencedValue[T] {
	return SequencedValue[T]{Value: v, Sequence: seq}
}

// Indexed returns an IndexedValue carrying v under index.
func Indexed[T any, I comparable](v T, index I) IndexedValue[T, I] {
	return IndexedValue[T, I]{Value: v, Index: index}
}

type (
	SequencedBboQuote       = SequencedValue[BboQuote]
	SequencedMarketQuote    = SequencedValue[MarketQuote]
	SequencedBookQuote      = SequencedValue[BookQuote]
	SequencedTimeAndSale    = SequencedValue[TimeAndSale]
	SequencedOrderImbalance = SequencedValue[OrderImbalance]

	SecurityBboQuote         = IndexedValue[BboQuote, region.Security]
	SecurityBookQuote        = IndexedValue[BookQuote, region.Security]
	SecurityTimeAndSale      = IndexedValue[TimeAndSale, region.Security]
	MarketWideMarketQuote    = IndexedValue[MarketQuote, region.MarketCode]
	MarketWideOrderImbalance = IndexedValue[OrderImbalance, region.MarketCode]

	SequencedSecurityBboQuote         = SequencedValue[SecurityBboQuote]
	SequencedSecurityBookQuote        = SequencedValue[SecurityBookQuote]
	SequencedSecurityTimeAndSale      = SequencedValue[SecurityTimeAndSale]
	SequencedMarketWideMarketQuote    = SequencedValue[MarketWideMarketQuote]
	SequencedMarketWideOrderImbalance = SequencedValue[MarketWideOrderImbalance]
)

// Kind enumerates the recorded record kinds.
type Kind int

const (
	KindBboQuote Kind = iota + 1
	KindMarketQuote
	KindBookQuote
	KindTimeAndSale
	KindOrderImbalance
	KindSecurityInfo
)

var kindNames = map[Kind]string{
	KindBboQuote:       "bbo_quote",
	KindMarketQuote:    "market_quote",
	KindBookQuote:      "book_quote",
	KindTimeAndSale:    "time_and_sale",
	KindOrderImbalance: "order_imbalance",
	KindSecurityInfo:   "security_info",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses the snake_case name of a kind.
func ParseKind(text string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for k, name := range kindNames {
		if name == normalized {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown market data kind %q", text)
}

// UnmarshalText implements encoding.TextUnmarshaler so kinds can be listed in YAML.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
