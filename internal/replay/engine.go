// Package replay re-emits recorded market data to a live feed, preserving the gaps
// between consecutive records of each security and kind.
package replay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/chronicle/errs"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/query"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/feed"
	"github.com/coachpo/chronicle/internal/infra/telemetry"
	"github.com/coachpo/chronicle/internal/observability"
)

// Scope names the replay engine in error envelopes.
const Scope = "replay"

// DataSource loads the security-indexed records a replay reads from. Every
// historystore.Store is a DataSource.
type DataSource interface {
	LoadBboQuotes(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedBboQuote, error)
	LoadBookQuotes(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedBookQuote, error)
	LoadTimeAndSales(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedTimeAndSale, error)
}

// State is the lifecycle stage of an Engine.
type State int32

const (
	StateNotStarted State = iota
	StateOpening
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Engine replays the configured kinds of every security onto a feed client. Each
// (security, kind) pair runs as an independent unit; a failing unit stops alone.
type Engine struct {
	client     feed.Client
	source     DataSource
	securities []region.Security
	start      time.Time
	opts       options

	published metric.Int64Counter
	failed    metric.Int64Counter
	lag       metric.Float64Histogram

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	failMu   sync.Mutex
	failures []error
}

// NewEngine returns an engine replaying securities from start.
func NewEngine(client feed.Client, source DataSource, securities []region.Security, start time.Time, opts ...Option) (*Engine, error) {
	if client == nil || source == nil {
		return nil, errs.New(Scope, errs.CodeInvalid, errs.WithMessage("feed client and data source required"))
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	for _, kind := range o.kinds {
		switch kind {
		case marketdata.KindBboQuote, marketdata.KindBookQuote, marketdata.KindTimeAndSale:
		default:
			return nil, errs.New(Scope, errs.CodeInvalid,
				errs.WithMessage(fmt.Sprintf("kind %s is not indexed by security", kind)))
		}
	}

	meter := otel.Meter("chronicle.replay")
	published, err := meter.Int64Counter(telemetry.MetricReplayPublished,
		metric.WithDescription("Records published by replay units"),
		metric.WithUnit("{record}"))
	if err != nil {
		return nil, fmt.Errorf("replay: create published counter: %w", err)
	}
	failed, err := meter.Int64Counter(telemetry.MetricReplayFailed,
		metric.WithDescription("Replay units stopped by a failure"),
		metric.WithUnit("{unit}"))
	if err != nil {
		return nil, fmt.Errorf("replay: create failure counter: %w", err)
	}
	lag, err := meter.Float64Histogram(telemetry.MetricReplayLag,
		metric.WithDescription("Delay between a record's scheduled and actual publish time"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("replay: create lag histogram: %w", err)
	}

	return &Engine{
		client:     client,
		source:     source,
		securities: append([]region.Security(nil), securities...),
		start:      start,
		opts:       o,
		published:  published,
		failed:     failed,
		lag:        lag,
		done:       make(chan struct{}),
	}, nil
}

// State returns the current lifecycle stage.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Done is closed once every unit has finished, or when the engine closes.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Failures returns the errors that stopped units so far.
func (e *Engine) Failures() []error {
	e.failMu.Lock()
	defer e.failMu.Unlock()
	return append([]error(nil), e.failures...)
}

// Open opens the feed client and starts one unit per (security, kind). If the client
// fails to open the engine closes and the error is returned.
func (e *Engine) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateNotStarted {
		return errs.New(Scope, errs.CodeConflict, errs.WithMessage("engine already opened"))
	}
	e.state = StateOpening

	if err := e.client.Open(ctx); err != nil {
		closeErr := e.client.Close()
		e.state = StateClosed
		close(e.done)
		return errors.Join(fmt.Errorf("replay: open feed client: %w", err), closeErr)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	var wg conc.WaitGroup
	for _, security := range e.securities {
		for _, kind := range e.opts.kinds {
			wg.Go(func() { e.runUnit(runCtx, security, kind) })
		}
	}
	go func() {
		wg.Wait()
		close(e.done)
	}()
	e.state = StateOpen
	e.opts.logger.Info("replay started",
		observability.Field{Key: "securities", Value: len(e.securities)},
		observability.Field{Key: "kinds", Value: len(e.opts.kinds)},
		observability.Field{Key: "start", Value: e.start})
	return nil
}

// Close stops every unit, waits for them to return and closes the feed client. It is
// safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateClosed:
		return nil
	case StateNotStarted:
		e.state = StateClosed
		close(e.done)
		return nil
	}
	e.state = StateClosing
	e.cancel()
	<-e.done
	err := e.client.Close()
	e.state = StateClosed
	e.opts.logger.Info("replay closed")
	return err
}

func (e *Engine) runUnit(ctx context.Context, security region.Security, kind marketdata.Kind) {
	attrs := metric.WithAttributes(telemetry.ReplayAttributes(telemetry.Environment(), kind.String(), security.String())...)
	fields := []observability.Field{
		observability.Security(security),
		observability.Kind(kind),
	}
	defer func() {
		if r := recover(); r != nil {
			e.fail(security, kind, attrs, fields, fmt.Errorf("unit panicked: %v", r))
		}
	}()
	u := unitContext{engine: e, security: security, attrs: attrs}
	var err error
	switch kind {
	case marketdata.KindBboQuote:
		err = replayUnit[marketdata.BboQuote](ctx, u, e.source.LoadBboQuotes, e.client.PublishBboQuote)
	case marketdata.KindBookQuote:
		err = replayUnit[marketdata.BookQuote](ctx, u, e.source.LoadBookQuotes, e.client.PublishBookQuote)
	case marketdata.KindTimeAndSale:
		err = replayUnit[marketdata.TimeAndSale](ctx, u, e.source.LoadTimeAndSales, e.client.PublishTimeAndSale)
	}
	switch {
	case err == nil:
		e.opts.logger.Info("replay unit finished", fields...)
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		e.opts.logger.Debug("replay unit stopped", fields...)
	default:
		e.fail(security, kind, attrs, fields, err)
	}
}

// fail records a unit that stopped on err. Other units keep running.
func (e *Engine) fail(security region.Security, kind marketdata.Kind, attrs metric.MeasurementOption, fields []observability.Field, err error) {
	e.failed.Add(context.Background(), 1, attrs)
	e.opts.logger.Error("replay unit failed", append(slices.Clip(fields), observability.Err(err))...)
	e.failMu.Lock()
	e.failures = append(e.failures, fmt.Errorf("replay %s %s: %w", security, kind, err))
	e.failMu.Unlock()
}

type unitContext struct {
	engine   *Engine
	security region.Security
	attrs    metric.MeasurementOption
}

type loader[T any] func(context.Context, query.SecurityMarketDataQuery) ([]marketdata.SequencedValue[T], error)

type publisher[T any] func(context.Context, marketdata.IndexedValue[T, region.Security]) error

// replayUnit publishes the records of one security and kind. replayTime tracks the
// recorded timeline and advances by the wall clock time spent loading, waiting and
// publishing, so processing latency does not accumulate.
func replayUnit[T marketdata.Restampable[T]](ctx context.Context, u unitContext, load loader[T], publish publisher[T]) error {
	e := u.engine
	clock, timer := e.opts.clock, e.opts.timer
	currentTime := clock.Now()
	replayTime := e.start
	advance := func() {
		now := clock.Now()
		replayTime = replayTime.Add(now.Sub(currentTime))
		currentTime = now
	}

	q := query.NewQuery(u.security)
	q.SetRange(query.NewRange(query.AtTime(e.start), query.AtTime(query.MaxTime)))
	q.SetSnapshotLimit(query.FromHead(e.opts.chunkSize))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := loadChunk(ctx, e, q, load)
		if err != nil {
			return err
		}
		advance()
		for _, record := range chunk {
			timestamp := record.Value.GetTimestamp()
			if wait := timestamp.Sub(replayTime); wait > 0 && wait >= e.opts.sampling {
				if err := timer.Wait(ctx, wait); err != nil {
					return err
				}
				advance()
			}
			if late := replayTime.Sub(timestamp); late > 0 {
				e.lag.Record(ctx, float64(late.Microseconds())/1000, u.attrs)
			}
			live := record.Value.WithTimestamp(clock.Now())
			if err := publish(ctx, marketdata.Indexed(live, u.security)); err != nil {
				return fmt.Errorf("publish sequence %d: %w", record.Sequence, err)
			}
			e.published.Add(ctx, 1, u.attrs)
			advance()
		}
		if len(chunk) < e.opts.chunkSize {
			return nil
		}
		next := chunk[len(chunk)-1].Sequence.Increment()
		q.SetRange(query.NewRange(query.AtSequence(next), query.AtTime(query.MaxTime)))
	}
}

// loadChunk runs load, retrying with exponential backoff up to the configured attempt
// budget. Backoff sleeps go through the engine's timer.
func loadChunk[T any](ctx context.Context, e *Engine, q query.SecurityMarketDataQuery, load loader[T]) ([]marketdata.SequencedValue[T], error) {
	policy := backoff.NewExponentialBackOff()
	for attempt := 1; ; attempt++ {
		chunk, err := load(ctx, q)
		if err == nil {
			return chunk, nil
		}
		if attempt >= e.opts.loadAttempts || ctx.Err() != nil {
			return nil, fmt.Errorf("load %s: %w", q.Range, err)
		}
		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			return nil, fmt.Errorf("load %s: %w", q.Range, err)
		}
		e.opts.logger.Info("replay load failed, retrying",
			observability.Security(q.Index),
			observability.Field{Key: "attempt", Value: attempt},
			observability.Field{Key: "delay", Value: delay},
			observability.Err(err))
		if werr := e.opts.timer.Wait(ctx, delay); werr != nil {
			return nil, werr
		}
	}
}
