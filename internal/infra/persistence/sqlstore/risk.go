package sqlstore

import (
	"context"
	"errors"
	"sync"

	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/domain/riskstore"
	"github.com/coachpo/chronicle/internal/infra/persistence"
	"github.com/coachpo/chronicle/internal/numeric"
)

const (
	selectSequenceSQL = `SELECT sequence FROM inventory_sequences WHERE account = ?`

	selectInventoriesSQL = `
SELECT symbol, country, venue, currency, quantity, cost_basis, gross_profit_and_loss,
    fees, volume, transaction_count
FROM inventory_entries
WHERE account = ?
ORDER BY symbol, country, currency`

	selectExcludedSQL = `SELECT id FROM inventory_excluded_orders WHERE account = ? ORDER BY id`

	insertSequenceSQL = `INSERT INTO inventory_sequences (account, sequence) VALUES (?, ?)`

	insertInventorySQL = `
INSERT INTO inventory_entries (
    account, symbol, country, venue, currency, quantity, cost_basis,
    gross_profit_and_loss, fees, volume, transaction_count
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertExcludedSQL = `INSERT INTO inventory_excluded_orders (account, id) VALUES (?, ?)`
)

var riskTables = []string{"inventory_excluded_orders", "inventory_entries", "inventory_sequences"}

// RiskDataStore is a riskstore.Store over SQL tables. Every call is serialized.
type RiskDataStore struct {
	mu     sync.Mutex
	pool   persistence.Pool
	closed bool
}

var _ riskstore.Store = (*RiskDataStore)(nil)

// NewRiskDataStore returns a store owning pool.
func NewRiskDataStore(pool persistence.Pool) (*RiskDataStore, error) {
	if pool == nil {
		return nil, errors.New("sqlstore: risk pool required")
	}
	return &RiskDataStore{pool: pool}, nil
}

func (s *RiskDataStore) guard() error {
	if s.closed {
		return riskstore.ErrClosed
	}
	return nil
}

// LoadInventorySnapshot implements riskstore.Store.
func (s *RiskDataStore) LoadInventorySnapshot(ctx context.Context, account riskstore.Account) (riskstore.InventorySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return riskstore.InventorySnapshot{}, err
	}
	snapshot := riskstore.InventorySnapshot{
		Inventories:    []riskstore.Inventory{},
		ExcludedOrders: []riskstore.OrderID{},
	}
	err := s.pool.InTx(ctx, func(ctx context.Context, tx persistence.Querier) error {
		var sequence int64
		switch err := tx.QueryRow(ctx, selectSequenceSQL, string(account)).Scan(&sequence); {
		case err == nil:
			snapshot.Sequence = marketdata.Sequence(sequence)
		case isNoRows(err):
		default:
			return err
		}

		rows, err := tx.Query(ctx, selectInventoriesSQL, string(account))
		if err != nil {
			return err
		}
		for rows.Next() {
			inv, err := scanInventory(rows)
			if err != nil {
				rows.Close()
				return err
			}
			snapshot.Inventories = append(snapshot.Inventories, inv)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, selectExcludedSQL, string(account))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			snapshot.ExcludedOrders = append(snapshot.ExcludedOrders, riskstore.OrderID(id))
		}
		return rows.Err()
	})
	if err != nil {
		return riskstore.InventorySnapshot{}, riskstore.IOError("load inventory snapshot", err)
	}
	return snapshot, nil
}

func scanInventory(rows persistence.Rows) (riskstore.Inventory, error) {
	var (
		symbol, country, venue, currency                string
		quantity, costBasis, gross, fees, volume, count int64
	)
	if err := rows.Scan(&symbol, &country, &venue, &currency, &quantity, &costBasis, &gross, &fees, &volume, &count); err != nil {
		return riskstore.Inventory{}, err
	}
	return riskstore.Inventory{
		Security:           region.Security{Symbol: symbol, Country: region.CountryCode(country), Venue: region.MarketCode(venue)},
		Currency:           riskstore.CurrencyCode(currency),
		Quantity:           numeric.QuantityFromRaw(quantity),
		CostBasis:          numeric.MoneyFromRaw(costBasis),
		GrossProfitAndLoss: numeric.MoneyFromRaw(gross),
		Fees:               numeric.MoneyFromRaw(fees),
		Volume:             numeric.QuantityFromRaw(volume),
		TransactionCount:   count,
	}, nil
}

// Store implements riskstore.Store. The account's previous rows are deleted and the
// snapshot inserted inside one transaction.
func (s *RiskDataStore) Store(ctx context.Context, account riskstore.Account, snapshot riskstore.InventorySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	err := s.pool.InTx(ctx, func(ctx context.Context, tx persistence.Querier) error {
		for _, table := range riskTables {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE account = ?", string(account)); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, insertSequenceSQL, string(account), int64(snapshot.Sequence)); err != nil {
			return err
		}
		for _, inv := range snapshot.Inventories {
			if _, err := tx.Exec(ctx, insertInventorySQL,
				string(account),
				inv.Security.Symbol,
				string(inv.Security.Country),
				string(inv.Security.Venue),
				string(inv.Currency),
				inv.Quantity.Raw(),
				inv.CostBasis.Raw(),
				inv.GrossProfitAndLoss.Raw(),
				inv.Fees.Raw(),
				inv.Volume.Raw(),
				inv.TransactionCount,
			); err != nil {
				return err
			}
		}
		for _, id := range snapshot.ExcludedOrders {
			if _, err := tx.Exec(ctx, insertExcludedSQL, string(account), int64(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return riskstore.IOError("store inventory snapshot", err)
	}
	return nil
}

// Clear implements riskstore.Store.
func (s *RiskDataStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	err := s.pool.InTx(ctx, func(ctx context.Context, tx persistence.Querier) error {
		for _, table := range riskTables {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return riskstore.IOError("clear", err)
	}
	return nil
}

// Close closes the pool.
func (s *RiskDataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.pool.Close()
}
