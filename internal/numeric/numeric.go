// Package numeric provides the fixed-point Money and Quantity types shared across
// chronicle services.
package numeric

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional decimal digits carried by Money and Quantity.
const Scale = 6

// Multiplier is the raw value of one unit.
const Multiplier = 1_000_000

var (
	maxRaw = decimal.NewFromInt(math.MaxInt64)
	minRaw = decimal.NewFromInt(math.MinInt64)
)

// Money is a fixed-point monetary amount with Scale fractional digits.
type Money int64

// Quantity is a fixed-point share or contract count with Scale fractional digits.
type Quantity int64

// ParseMoney parses a decimal string. Digits beyond Scale are truncated toward zero.
func ParseMoney(s string) (Money, error) {
	raw, err := parseFixed(s)
	if err != nil {
		return 0, fmt.Errorf("parse money: %w", err)
	}
	return Money(raw), nil
}

// MustParseMoney is ParseMoney for literals known to be valid.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromDecimal converts d, truncating digits beyond Scale.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	raw, err := fromDecimal(d)
	return Money(raw), err
}

// MoneyFromRaw returns the Money whose fixed-point representation is raw.
func MoneyFromRaw(raw int64) Money { return Money(raw) }

// Raw returns the fixed-point representation.
func (m Money) Raw() int64 { return int64(m) }

// Decimal returns m as an arbitrary-precision decimal.
func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -Scale) }

func (m Money) String() string { return m.Decimal().String() }

// Add returns m + o.
func (m Money) Add(o Money) Money { return m + o }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return m - o }

// Mul returns m scaled by q, truncated toward zero.
func (m Money) Mul(q Quantity) Money {
	product := m.Decimal().Mul(q.Decimal())
	raw, err := fromDecimal(product)
	if err != nil {
		if product.Sign() < 0 {
			return Money(math.MinInt64)
		}
		return Money(math.MaxInt64)
	}
	return Money(raw)
}

// MarshalText implements encoding.TextMarshaler.
func (m Money) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Money) UnmarshalText(text []byte) error {
	parsed, err := ParseMoney(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseQuantity parses a decimal string. Digits beyond Scale are truncated toward zero.
func ParseQuantity(s string) (Quantity, error) {
	raw, err := parseFixed(s)
	if err != nil {
		return 0, fmt.Errorf("parse quantity: %w", err)
	}
	return Quantity(raw), nil
}

// MustParseQuantity is ParseQuantity for literals known to be valid.
func MustParseQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

// QuantityFromInt returns n whole units.
func QuantityFromInt(n int64) Quantity { return Quantity(n * Multiplier) }

// QuantityFromRaw returns the Quantity whose fixed-point representation is raw.
func QuantityFromRaw(raw int64) Quantity { return Quantity(raw) }

// Raw returns the fixed-point representation.
func (q Quantity) Raw() int64 { return int64(q) }

// Decimal returns q as an arbitrary-precision decimal.
func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), -Scale) }

func (q Quantity) String() string { return q.Decimal().String() }

// Add returns q + o.
func (q Quantity) Add(o Quantity) Quantity { return q + o }

// Sub returns q - o.
func (q Quantity) Sub(o Quantity) Quantity { return q - o }

// Abs returns the magnitude of q.
func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// MarshalText implements encoding.TextMarshaler.
func (q Quantity) MarshalText() ([]byte, error) { return []byte(q.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quantity) UnmarshalText(text []byte) error {
	parsed, err := ParseQuantity(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

func parseFixed(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("value required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", trimmed, err)
	}
	return fromDecimal(d)
}

func fromDecimal(d decimal.Decimal) (int64, error) {
	scaled := d.Shift(Scale).Truncate(0)
	if scaled.GreaterThan(maxRaw) || scaled.LessThan(minRaw) {
		return 0, fmt.Errorf("%s out of range", d.String())
	}
	return scaled.IntPart(), nil
}
