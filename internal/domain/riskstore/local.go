package riskstore

import (
	"context"
	"sync"

	"github.com/coachpo/chronicle/errs"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errs.New(Scope, errs.CodeUnavailable, errs.WithMessage("store closed"))

// LocalStore keeps snapshots in memory.
type LocalStore struct {
	mu        sync.Mutex
	closed    bool
	snapshots map[Account]InventorySnapshot
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore returns an empty in-memory store.
func NewLocalStore() *LocalStore {
	return &LocalStore{snapshots: make(map[Account]InventorySnapshot)}
}

// LoadInventorySnapshot implements Store.
func (s *LocalStore) LoadInventorySnapshot(ctx context.Context, account Account) (InventorySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return InventorySnapshot{}, IOError("load_inventory_snapshot", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return InventorySnapshot{}, ErrClosed
	}
	return s.snapshots[account].Normalize(), nil
}

// Store implements Store.
func (s *LocalStore) Store(ctx context.Context, account Account, snapshot InventorySnapshot) error {
	if err := ctx.Err(); err != nil {
		return IOError("store_inventory_snapshot", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.snapshots[account] = snapshot.Normalize()
	return nil
}

// Clear implements Store.
func (s *LocalStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return IOError("clear", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	clear(s.snapshots)
	return nil
}

// Close implements Store.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
