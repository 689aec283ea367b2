// Package async provides bounded worker pool utilities.
package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/coachpo/chronicle/errs"
)

// Task represents a unit of work executed by the pool workers.
type Task func(context.Context) error

// ErrorHandler receives task failures and recovered panics.
type ErrorHandler func(error)

// Option configures a Pool.
type Option func(*Pool)

// WithErrorHandler routes task failures to fn instead of dropping them.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(p *Pool) {
		if fn != nil {
			p.onError = fn
		}
	}
}

// Pool defines a bounded worker pool enforcing backpressure when saturated.
type Pool struct {
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    chan job
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	onError ErrorHandler
}

type job struct {
	ctx  context.Context
	fn   Task
	done chan error
}

// NewPool creates a worker pool with the given concurrency and queue depth.
func NewPool(workers, queue int, opts ...Option) (*Pool, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(chan job, queue),
		onError: func(error) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p, nil
}

// Submit schedules the provided task without blocking. It fails when the queue is full.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	_, err := p.enqueue(ctx, fn, false)
	return err
}

// Do schedules fn, waiting for queue capacity, and returns the task's result.
func (p *Pool) Do(ctx context.Context, fn Task) error {
	done, err := p.enqueue(ctx, fn, true)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("await task: %w", ctx.Err())
	}
}

func (p *Pool) enqueue(ctx context.Context, fn Task, wait bool) (chan error, error) {
	if fn == nil {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("submit context: %w", err)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	}
	j := job{ctx: ctx, fn: fn}
	if wait {
		j.done = make(chan error, 1)
	}
	p.wg.Add(1)
	if !wait {
		select {
		case p.jobs <- j:
			return nil, nil
		default:
			p.wg.Done()
			return nil, errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool at capacity"))
		}
	}
	select {
	case <-ctx.Done():
		p.wg.Done()
		return nil, fmt.Errorf("submit context: %w", ctx.Err())
	case p.jobs <- j:
		return j.done, nil
	}
}

// Close stops accepting new tasks. Queued tasks still run.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
}

// Shutdown waits for queued and in-flight tasks to complete or until the context
// expires, then cancels the workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	defer p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (p *Pool) worker() {
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	defer p.wg.Done()
	ctx := j.ctx
	if ctx == nil {
		ctx = p.ctx
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage(fmt.Sprintf("task panic: %v", r)))
			}
		}()
		return j.fn(ctx)
	}()
	if j.done != nil {
		j.done <- err
		return
	}
	if err != nil {
		p.onError(err)
	}
}
