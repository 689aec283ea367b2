package replay

import (
	"time"

	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/observability"
)

// DefaultChunkSize is the number of records loaded per query.
const DefaultChunkSize = 1000

// DefaultKinds are the record kinds replayed when none are configured.
var DefaultKinds = []marketdata.Kind{
	marketdata.KindBboQuote,
	marketdata.KindBookQuote,
	marketdata.KindTimeAndSale,
}

type options struct {
	kinds        []marketdata.Kind
	chunkSize    int
	sampling     time.Duration
	loadAttempts int
	logger       observability.Logger
	clock        Clock
	timer        Timer
}

func defaultOptions() options {
	return options{
		kinds:        DefaultKinds,
		chunkSize:    DefaultChunkSize,
		loadAttempts: 1,
		logger:       observability.Log(),
		clock:        SystemClock{},
		timer:        SystemTimer{},
	}
}

// Option customises an Engine.
type Option func(*options)

// WithKinds selects the record kinds replayed. Kinds that are not indexed by security
// are rejected by NewEngine.
func WithKinds(kinds ...marketdata.Kind) Option {
	return func(o *options) {
		if len(kinds) > 0 {
			o.kinds = kinds
		}
	}
}

// WithChunkSize sets the number of records loaded per query.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithSampling sets the shortest wait a unit sleeps for. Records due sooner are
// published immediately; the lead is absorbed by the next wait.
func WithSampling(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sampling = d
		}
	}
}

// WithLoadRetry allows up to attempts tries per chunk load, spaced by exponential
// backoff.
func WithLoadRetry(attempts int) Option {
	return func(o *options) {
		if attempts > 0 {
			o.loadAttempts = attempts
		}
	}
}

// WithLogger sets the logger used for unit lifecycle events.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces the live clock.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithTimer replaces the timer units wait on.
func WithTimer(t Timer) Option {
	return func(o *options) {
		if t != nil {
			o.timer = t
		}
	}
}
