// Package riskstore defines the inventory snapshots persisted by the risk service.
package riskstore

import (
	"context"
	"slices"

	"github.com/coachpo/chronicle/errs"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/numeric"
)

// Scope names the risk data store in error envelopes.
const Scope = "risk_data_store"

// ErrIO matches backing store failures surfaced by a Store.
var ErrIO = errs.New(Scope, errs.CodeIO)

// IOError wraps a backing store failure of op.
func IOError(op string, cause error) error {
	return errs.New(Scope, errs.CodeIO, errs.WithMessage(op), errs.WithCause(cause))
}

// Account names a trading account.
type Account string

// CurrencyCode is an ISO 4217 currency code.
type CurrencyCode string

// OrderID identifies an order.
type OrderID int64

// InventoryKey identifies one position of an account.
type InventoryKey struct {
	Security region.SecurityKey
	Currency CurrencyCode
}

// Inventory aggregates the executions of one security in one currency.
type Inventory struct {
	Security           region.Security  `json:"security"`
	Currency           CurrencyCode     `json:"currency"`
	Quantity           numeric.Quantity `json:"quantity"`
	CostBasis          numeric.Money    `json:"cost_basis"`
	GrossProfitAndLoss numeric.Money    `json:"gross_profit_and_loss"`
	Fees               numeric.Money    `json:"fees"`
	Volume             numeric.Quantity `json:"volume"`
	TransactionCount   int64            `json:"transaction_count"`
}

// Key returns the identity of the position.
func (i Inventory) Key() InventoryKey {
	return InventoryKey{Security: i.Security.Key(), Currency: i.Currency}
}

// InventorySnapshot is the persisted risk state of an account: the highest execution
// sequence reflected in the inventories and the orders deliberately left out of them.
type InventorySnapshot struct {
	Sequence       marketdata.Sequence `json:"sequence"`
	Inventories    []Inventory         `json:"inventories"`
	ExcludedOrders []OrderID           `json:"excluded_orders"`
}

// Normalize returns a copy with inventories ordered by (symbol, country, currency) and
// excluded orders ascending, so that equal snapshots compare equal.
func (s InventorySnapshot) Normalize() InventorySnapshot {
	out := InventorySnapshot{
		Sequence:       s.Sequence,
		Inventories:    slices.Clone(s.Inventories),
		ExcludedOrders: slices.Clone(s.ExcludedOrders),
	}
	if out.Inventories == nil {
		out.Inventories = []Inventory{}
	}
	if out.ExcludedOrders == nil {
		out.ExcludedOrders = []OrderID{}
	}
	slices.SortFunc(out.Inventories, func(a, b Inventory) int {
		if c := a.Security.Compare(b.Security); c != 0 {
			return c
		}
		switch {
		case a.Currency < b.Currency:
			return -1
		case a.Currency > b.Currency:
			return 1
		}
		return 0
	})
	slices.Sort(out.ExcludedOrders)
	return out
}

// Store persists one InventorySnapshot per account.
type Store interface {
	// LoadInventorySnapshot returns the snapshot of account, or an empty snapshot when
	// none was stored.
	LoadInventorySnapshot(ctx context.Context, account Account) (InventorySnapshot, error)
	// Store replaces every stored row of account with snapshot atomically.
	Store(ctx context.Context, account Account, snapshot InventorySnapshot) error
	// Clear erases the snapshots of every account.
	Clear(ctx context.Context) error
	Close() error
}
