// Package runtime provides the per-entity single-writer dispatcher. Every
// command for an entity key runs on that key's dedicated worker goroutine,
// one at a time in admission order; commands for different keys run in
// parallel. Entity code above this package therefore needs no locks.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tillworks/opsledger/internal/infrastructure/metrics"
)

// ErrRuntimeClosed is returned for commands submitted after Close.
var ErrRuntimeClosed = errors.New("runtime closed")

const (
	// DefaultInboxSize bounds each worker's pending command queue. A full
	// inbox applies backpressure to callers.
	DefaultInboxSize = 64
	// DefaultIdleTimeout is how long a worker with no pending work lives
	// before it is reaped. A reaped entity is re-activated transparently on
	// its next command.
	DefaultIdleTimeout = 5 * time.Minute
)

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

type worker struct {
	inbox chan task
	// pending counts queued plus running tasks; guarded by the dispatcher
	// mutex. A worker is only reaped at pending == 0, and every increment
	// is matched by an inbox send, so draining pending sends is safe.
	pending int
}

// Dispatcher owns the worker table. It implements usecase.Executor.
type Dispatcher struct {
	inboxSize   int
	idleTimeout time.Duration
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	quit        chan struct{}

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithInboxSize overrides the per-worker queue capacity.
func WithInboxSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.inboxSize = n
		}
	}
}

// WithIdleTimeout overrides the worker idle reap timeout.
func WithIdleTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.idleTimeout = t
		}
	}
}

// WithMetrics attaches runtime metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		inboxSize:   DefaultInboxSize,
		idleTimeout: DefaultIdleTimeout,
		logger:      logger.With().Str("component", "runtime").Logger(),
		quit:        make(chan struct{}),
		workers:     make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Do runs fn on the worker for key and waits for its result. Admission to a
// full inbox blocks; ctx is checked again when the command is picked up, so
// a cancelled caller gets its context error instead of running stale work.
func (d *Dispatcher) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrRuntimeClosed
	}
	w, ok := d.workers[key]
	if !ok {
		w = &worker{inbox: make(chan task, d.inboxSize)}
		d.workers[key] = w
		d.wg.Add(1)
		go d.run(key, w)
		if d.metrics != nil {
			d.metrics.RuntimeWorkers.Inc()
		}
	}
	w.pending++
	d.mu.Unlock()

	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}
	w.inbox <- t

	start := time.Now()
	err := <-t.done

	if d.metrics != nil {
		entity := entityOf(key)
		d.metrics.CommandDuration.WithLabelValues(entity).Observe(time.Since(start).Seconds())
		if err != nil {
			d.metrics.CommandErrors.WithLabelValues(entity).Inc()
		}
	}
	return err
}

// Close stops accepting commands, lets already-admitted work drain and waits
// for every worker to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.quit)
	d.wg.Wait()
}

// Len reports the number of live workers.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

func (d *Dispatcher) run(key string, w *worker) {
	defer d.wg.Done()

	idle := time.NewTimer(d.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case t := <-w.inbox:
			d.execute(key, w, t)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.idleTimeout)

		case <-idle.C:
			// Re-check under the lock: a command may have been admitted
			// between the timer firing and the reap.
			d.mu.Lock()
			if w.pending == 0 {
				delete(d.workers, key)
				d.mu.Unlock()
				if d.metrics != nil {
					d.metrics.RuntimeWorkers.Dec()
				}
				return
			}
			d.mu.Unlock()
			idle.Reset(d.idleTimeout)

		case <-d.quit:
			d.drain(key, w)
			return
		}
	}
}

// drain finishes admitted work after Close. Every pending increment is
// matched by an inbox send, so receiving until pending reaches zero cannot
// block forever.
func (d *Dispatcher) drain(key string, w *worker) {
	for {
		d.mu.Lock()
		if w.pending == 0 {
			delete(d.workers, key)
			d.mu.Unlock()
			if d.metrics != nil {
				d.metrics.RuntimeWorkers.Dec()
			}
			return
		}
		d.mu.Unlock()
		d.execute(key, w, <-w.inbox)
	}
}

func (d *Dispatcher) execute(key string, w *worker, t task) {
	defer func() {
		d.mu.Lock()
		w.pending--
		d.mu.Unlock()
	}()

	if err := t.ctx.Err(); err != nil {
		t.done <- err
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Str("key", key).Any("panic", r).Msg("command panicked")
			t.done <- fmt.Errorf("command panic: %v", r)
		}
	}()
	t.done <- t.fn(t.ctx)
}

func entityOf(key string) string {
	if i := strings.IndexByte(key, '/'); i > 0 {
		return key[:i]
	}
	return key
}
