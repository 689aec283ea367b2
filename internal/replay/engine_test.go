package replay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/chronicle/errs"
	"github.com/coachpo/chronicle/internal/domain/historystore"
	"github.com/coachpo/chronicle/internal/domain/historystore/storetest"
	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/query"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/feed"
)

// fakeClock is both Clock and Timer: waiting advances the clock and records the
// requested duration.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// recordingClient records BBO publishes. Each publish costs delay on the clock.
type recordingClient struct {
	feed.NullClient
	clock   *fakeClock
	delay   time.Duration
	openErr error
	failOn  region.Security
	panicOn region.Security

	mu     sync.Mutex
	bbo    []marketdata.SecurityBboQuote
	closed int
}

func (c *recordingClient) Open(context.Context) error { return c.openErr }

func (c *recordingClient) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *recordingClient) PublishBboQuote(_ context.Context, v marketdata.SecurityBboQuote) error {
	if c.failOn == v.Index {
		return errors.New("connection reset")
	}
	if c.panicOn == v.Index {
		panic("nil frame encoder")
	}
	if c.clock != nil {
		c.clock.Advance(c.delay)
	}
	c.mu.Lock()
	c.bbo = append(c.bbo, v)
	c.mu.Unlock()
	return nil
}

func (c *recordingClient) published() []marketdata.SecurityBboQuote {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]marketdata.SecurityBboQuote(nil), c.bbo...)
}

func (c *recordingClient) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// countingSource counts BBO loads and fails the first failures of them.
type countingSource struct {
	historystore.Store
	mu       sync.Mutex
	loads    int
	failures int
}

func (s *countingSource) LoadBboQuotes(ctx context.Context, q query.SecurityMarketDataQuery) ([]marketdata.SequencedBboQuote, error) {
	s.mu.Lock()
	s.loads++
	fail := s.loads <= s.failures
	s.mu.Unlock()
	if fail {
		return nil, historystore.IOError("load_bbo_quotes", errors.New("database is locked"))
	}
	return s.Store.LoadBboQuotes(ctx, q)
}

func (s *countingSource) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func bboAt(sec region.Security, seq marketdata.Sequence, offset time.Duration) marketdata.SequencedSecurityBboQuote {
	v := storetest.Bbo(sec, seq)
	v.Value.Value.Timestamp = storetest.Base.Add(offset)
	return v
}

func seed(t *testing.T, records ...marketdata.SequencedSecurityBboQuote) historystore.Store {
	t.Helper()
	store := historystore.NewLocalStore()
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.StoreBboQuotes(context.Background(), records))
	return store
}

func waitDone(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("replay did not finish")
	}
}

func TestReplayPreservesGapsNetOfProcessingDelay(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	client := &recordingClient{clock: clock, delay: 10 * time.Millisecond}
	source := seed(t,
		bboAt(storetest.IBM, 1, 0),
		bboAt(storetest.IBM, 2, 100*time.Millisecond),
		bboAt(storetest.IBM, 3, 250*time.Millisecond),
	)

	e, err := NewEngine(client, source, []region.Security{storetest.IBM}, storetest.Base,
		WithKinds(marketdata.KindBboQuote), WithClock(clock), WithTimer(clock))
	require.NoError(t, err)
	require.NoError(t, e.Open(context.Background()))
	waitDone(t, e)
	require.NoError(t, e.Close())

	require.Equal(t, []time.Duration{90 * time.Millisecond, 140 * time.Millisecond}, clock.Waits())
	published := client.published()
	require.Len(t, published, 3)
	require.Equal(t, start, published[0].Value.Timestamp)
	require.Equal(t, 100*time.Millisecond, published[1].Value.Timestamp.Sub(published[0].Value.Timestamp))
	require.Equal(t, 150*time.Millisecond, published[2].Value.Timestamp.Sub(published[1].Value.Timestamp))
	for _, v := range published {
		require.Equal(t, storetest.IBM, v.Index)
	}
	require.Empty(t, e.Failures())
}

func TestReplayContinuesAcrossChunks(t *testing.T) {
	clock := newFakeClock()
	client := &recordingClient{}
	source := &countingSource{Store: seed(t,
		bboAt(storetest.IBM, 1, -time.Second),
		bboAt(storetest.IBM, 2, 0),
		bboAt(storetest.IBM, 3, 0),
		bboAt(storetest.IBM, 4, time.Millisecond),
		bboAt(storetest.IBM, 5, 2*time.Millisecond),
		bboAt(storetest.IBM, 6, 3*time.Millisecond),
	)}

	e, err := NewEngine(client, source, []region.Security{storetest.IBM}, storetest.Base,
		WithKinds(marketdata.KindBboQuote), WithChunkSize(2), WithClock(clock), WithTimer(clock))
	require.NoError(t, err)
	require.NoError(t, e.Open(context.Background()))
	waitDone(t, e)
	require.NoError(t, e.Close())

	published := client.published()
	require.Len(t, published, 5, "records before the start time are skipped")
	for i, v := range published {
		require.Equal(t, storetest.Bbo(storetest.IBM, marketdata.Sequence(i+2)).Value.Value.Bid, v.Value.Bid)
	}
	require.Equal(t, 3, source.Loads())
}

func TestReplaySamplingSkipsShortWaits(t *testing.T) {
	clock := newFakeClock()
	client := &recordingClient{}
	source := seed(t,
		bboAt(storetest.IBM, 1, 0),
		bboAt(storetest.IBM, 2, 10*time.Millisecond),
		bboAt(storetest.IBM, 3, 20*time.Millisecond),
		bboAt(storetest.IBM, 4, 120*time.Millisecond),
	)

	e, err := NewEngine(client, source, []region.Security{storetest.IBM}, storetest.Base,
		WithKinds(marketdata.KindBboQuote), WithSampling(50*time.Millisecond),
		WithClock(clock), WithTimer(clock))
	require.NoError(t, err)
	require.NoError(t, e.Open(context.Background()))
	waitDone(t, e)
	require.NoError(t, e.Close())

	require.Equal(t, []time.Duration{120 * time.Millisecond}, clock.Waits())
	require.Len(t, client.published(), 4)
}

func TestReplayUnitFailureIsIsolated(t *testing.T) {
	clock := newFakeClock()
	client := &recordingClient{failOn: storetest.IBM}
	source := seed(t,
		bboAt(storetest.IBM, 1, 0),
		bboAt(storetest.GE, 1, 0),
		bboAt(storetest.GE, 2, time.Millisecond),
	)

	e, err := NewEngine(client, source, []region.Security{storetest.IBM, storetest.GE}, storetest.Base,
		WithKinds(marketdata.KindBboQuote), WithClock(clock), WithTimer(clock))
	require.NoError(t, err)
	require.NoError(t, e.Open(context.Background()))
	waitDone(t, e)

	published := client.published()
	require.Len(t, published, 2)
	for _, v := range published {
		require.Equal(t, storetest.GE, v.Index)
	}
	failures := e.Failures()
	require.Len(t, failures, 1)
	require.ErrorContains(t, failures[0], "connection reset")
	require.Equal(t, StateOpen, e.State())
	require.NoError(t, e.Close())
}

func TestReplayUnitPanicIsIsolated(t *testing.T) {
	clock := newFakeClock()
	client := &recordingClient{panicOn: storetest.IBM}
	source := seed(t,
		bboAt(storetest.IBM, 1, 0),
		bboAt(storetest.GE, 1, 0),
	)

	e, err := NewEngine(client, source, []region.Security{storetest.IBM, storetest.GE}, storetest.Base,
		WithKinds(marketdata.KindBboQuote), WithClock(clock), WithTimer(clock))
	require.NoError(t, err)
	require.NoError(t, e.Open(context.Background()))
	waitDone(t, e)

	published := client.published()
	require.Len(t, published, 1)
	require.Equal(t, storetest.GE, published[0].Index)
	failures := e.Failures()
	require.Len(t, failures, 1)
	require.ErrorContains(t, failures[0], "nil frame encoder")
	require.NoError(t, e.Close())
}

func TestReplayRetriesChunkLoads(t *testing.T) {
	clock := newFakeClock()
	client := &recordingClient{}
	source := &countingSource{Store: seed(t, bboAt(storetest.IBM, 1, 0)), failures: 2}

	e, err := NewEngine(client, source, []region.Security{storetest.IBM}, storetest.Base,
		WithKinds(marketdata.KindBboQuote), WithLoadRetry(3), WithClock(clock), WithTimer(clock))
	require.NoError(t, err)
	require.NoError(t, e.Open(context.Background()))
	waitDone(t, e)
	require.NoError(t, e.Close())

	require.Len(t, client.published(), 1)
	require.Equal(t, 3, source.Loads())
	require.Empty(t, e.Failures())
}

func TestReplayLoadFailureStopsUnit(t *testing.T) {
	clock := newFakeClock()
	client := &recordingClient{}
	source := &countingSource{Store: seed(t, bboAt(storetest.IBM, 1, 0)), failures: 1}

	e, err := NewEngine(client, source, []region.Security{storetest.IBM}, storetest.Base,
		WithKinds(marketdata.KindBboQuote), WithClock(clock), WithTimer(clock))
	require.NoError(t, err)
	require.NoError(t, e.Open(context.Background()))
	waitDone(t, e)
	require.NoError(t, e.Close())

	require.Empty(t, client.published())
	failures := e.Failures()
	require.Len(t, failures, 1)
	require.ErrorIs(t, failures[0], historystore.ErrIO)
}

func TestReplayOpenFailureClosesEverything(t *testing.T) {
	client := &recordingClient{openErr: errors.New("dial refused")}
	e, err := NewEngine(client, historystore.NewLocalStore(), []region.Security{storetest.IBM}, storetest.Base)
	require.NoError(t, err)

	err = e.Open(context.Background())
	require.ErrorContains(t, err, "dial refused")
	require.Equal(t, StateClosed, e.State())
	require.Equal(t, 1, client.closeCount())
	select {
	case <-e.Done():
	default:
		t.Fatal("done channel not closed")
	}
	require.NoError(t, e.Close())
	require.Equal(t, 1, client.closeCount())
}

func TestReplayCloseStopsWaitingUnitsAndIsIdempotent(t *testing.T) {
	client := &recordingClient{}
	source := seed(t,
		bboAt(storetest.IBM, 1, 0),
		bboAt(storetest.IBM, 2, time.Hour),
	)
	e, err := NewEngine(client, source, []region.Security{storetest.IBM}, storetest.Base,
		WithKinds(marketdata.KindBboQuote), WithClock(SystemClock{}), WithTimer(SystemTimer{}))
	require.NoError(t, err)
	require.NoError(t, e.Open(context.Background()))
	require.Eventually(t, func() bool { return len(client.published()) == 1 }, 5*time.Second, 5*time.Millisecond)

	err = e.Open(context.Background())
	require.True(t, errs.HasCode(err, errs.CodeConflict))

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	require.Equal(t, StateClosed, e.State())
	require.Equal(t, 1, client.closeCount())
	require.Empty(t, e.Failures(), "cancellation is not a failure")
	waitDone(t, e)
}

func TestCloseBeforeOpen(t *testing.T) {
	e, err := NewEngine(&recordingClient{}, historystore.NewLocalStore(), nil, storetest.Base)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.Equal(t, StateClosed, e.State())
	waitDone(t, e)
}

func TestNewEngineRejectsMarketWideKinds(t *testing.T) {
	_, err := NewEngine(&recordingClient{}, historystore.NewLocalStore(), nil, storetest.Base,
		WithKinds(marketdata.KindOrderImbalance))
	require.True(t, errs.HasCode(err, errs.CodeInvalid))

	_, err = NewEngine(nil, historystore.NewLocalStore(), nil, storetest.Base)
	require.True(t, errs.HasCode(err, errs.CodeInvalid))
}

func TestSystemTimerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, SystemTimer{}.Wait(ctx, time.Hour), context.Canceled)
	require.NoError(t, SystemTimer{}.Wait(context.Background(), time.Millisecond))
}
