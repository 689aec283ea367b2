package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coachpo/chronicle/errs"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/domain/regionmap"
	"github.com/coachpo/chronicle/internal/domain/riskstore"
	"github.com/coachpo/chronicle/internal/numeric"
	"github.com/coachpo/chronicle/internal/observability"
)

// Scope names the risk service in error envelopes.
const Scope = "risk"

// DefaultPersistInterval is how often dirty snapshots are written when none is
// configured.
const DefaultPersistInterval = 30 * time.Second

// Service holds the inventory snapshot of every tracked account and the region-scoped
// risk parameters. It is safe for concurrent use.
type Service struct {
	store    riskstore.Store
	interval time.Duration
	logger   observability.Logger
	now      func() time.Time

	mu         sync.RWMutex
	parameters *regionmap.RegionMap[Parameters]
	snapshots  map[riskstore.Account]riskstore.InventorySnapshot
	dirty      map[riskstore.Account]struct{}
	peaks      map[riskstore.Account]map[riskstore.InventoryKey]numeric.Money
	breachedAt map[riskstore.Account]time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithPersistInterval sets how often Run writes dirty snapshots.
func WithPersistInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow replaces the clock used to time status transitions.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService returns a service persisting to store and resolving limits through
// parameters.
func NewService(store riskstore.Store, parameters *regionmap.RegionMap[Parameters], opts ...Option) (*Service, error) {
	if store == nil || parameters == nil {
		return nil, errs.New(Scope, errs.CodeInvalid, errs.WithMessage("store and parameters required"))
	}
	s := &Service{
		store:      store,
		interval:   DefaultPersistInterval,
		logger:     observability.Log(),
		now:        time.Now,
		parameters: parameters,
		snapshots:  make(map[riskstore.Account]riskstore.InventorySnapshot),
		dirty:      make(map[riskstore.Account]struct{}),
		peaks:      make(map[riskstore.Account]map[riskstore.InventoryKey]numeric.Money),
		breachedAt: make(map[riskstore.Account]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load reads the persisted snapshot of every account.
func (s *Service) Load(ctx context.Context, accounts ...riskstore.Account) error {
	for _, account := range accounts {
		snapshot, err := s.store.LoadInventorySnapshot(ctx, account)
		if err != nil {
			return fmt.Errorf("risk: load %s: %w", account, err)
		}
		s.mu.Lock()
		s.snapshots[account] = snapshot
		s.trackPeaksLocked(account, snapshot)
		s.mu.Unlock()
		s.logger.Info("inventory snapshot loaded",
			observability.Account(account),
			observability.Field{Key: "sequence", Value: uint64(snapshot.Sequence)},
			observability.Field{Key: "inventories", Value: len(snapshot.Inventories)})
	}
	return nil
}

// Snapshot returns the current snapshot of account.
func (s *Service) Snapshot(account riskstore.Account) (riskstore.InventorySnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[account]
	return snapshot, ok
}

// Update replaces the snapshot of account. Snapshots older than the current one are
// rejected with a conflict.
func (s *Service) Update(account riskstore.Account, snapshot riskstore.InventorySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.snapshots[account]; ok && snapshot.Sequence < current.Sequence {
		return errs.New(Scope, errs.CodeConflict, errs.WithMessage(
			fmt.Sprintf("snapshot sequence %d behind %d for %s", snapshot.Sequence, current.Sequence, account)))
	}
	s.snapshots[account] = snapshot
	s.dirty[account] = struct{}{}
	s.trackPeaksLocked(account, snapshot)
	return nil
}

func (s *Service) trackPeaksLocked(account riskstore.Account, snapshot riskstore.InventorySnapshot) {
	peaks := s.peaks[account]
	if peaks == nil {
		peaks = make(map[riskstore.InventoryKey]numeric.Money)
		s.peaks[account] = peaks
	}
	for _, inv := range snapshot.Inventories {
		if net := netProfit(inv); net > peaks[inv.Key()] {
			peaks[inv.Key()] = net
		}
	}
}

// ParametersFor returns the limits of the closest region enclosing security.
func (s *Service) ParametersFor(security region.Security) Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parameters.Get(region.FromSecurity(security))
}

// SetParameters overrides the limits of r.
func (s *Service) SetParameters(r region.Region, p Parameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parameters.Set(r, p)
}

// Evaluate checks every position of account against its limits. A breaching account
// moves to CloseOrders and, once it has been breaching for the transition time of the
// first breached position, to Disabled. Clearing every breach reactivates it.
func (s *Service) Evaluate(account riskstore.Account) Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.snapshots[account]
	peaks := s.peaks[account]
	var (
		breaches   []Breach
		transition time.Duration
	)
	for _, inv := range snapshot.Inventories {
		p := s.parameters.Get(region.FromSecurity(inv.Security))
		for _, reason := range check(inv, p, peaks[inv.Key()]) {
			if len(breaches) == 0 {
				transition = p.TransitionTime
			}
			breaches = append(breaches, Breach{Security: inv.Security, Currency: inv.Currency, Reason: reason})
		}
	}
	if len(breaches) == 0 {
		delete(s.breachedAt, account)
		return Evaluation{Status: StatusActive}
	}
	now := s.now()
	since, ok := s.breachedAt[account]
	if !ok {
		s.breachedAt[account] = now
		since = now
	}
	status := StatusCloseOrders
	if now.Sub(since) >= transition {
		status = StatusDisabled
	}
	return Evaluation{Status: status, Breaches: breaches}
}

// Persist writes every snapshot updated since the last Persist.
func (s *Service) Persist(ctx context.Context) error {
	s.mu.Lock()
	pending := make(map[riskstore.Account]riskstore.InventorySnapshot, len(s.dirty))
	for account := range s.dirty {
		pending[account] = s.snapshots[account]
	}
	s.dirty = make(map[riskstore.Account]struct{})
	s.mu.Unlock()

	var failures []error
	for account, snapshot := range pending {
		if err := s.store.Store(ctx, account, snapshot); err != nil {
			failures = append(failures, fmt.Errorf("persist %s: %w", account, err))
			s.mu.Lock()
			s.dirty[account] = struct{}{}
			s.mu.Unlock()
		}
	}
	if len(failures) > 0 {
		return observability.AggregateErrors(s.logger, "risk persist", failures)
	}
	if len(pending) > 0 {
		s.logger.Debug("inventory snapshots persisted", observability.Field{Key: "accounts", Value: len(pending)})
	}
	return nil
}

// Run persists dirty snapshots every interval until ctx is done, then persists once
// more.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			err := s.Persist(context.WithoutCancel(ctx))
			if errors.Is(ctx.Err(), context.Canceled) {
				return err
			}
			return errors.Join(ctx.Err(), err)
		case <-ticker.C:
			if err := s.Persist(ctx); err != nil {
				s.logger.Error("inventory persist failed", observability.Err(err))
			}
		}
	}
}
