package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrQueueFull is reported when a task is dropped on submission.
var ErrQueueFull = errors.New("tasks: queue full")

// ErrClosed is reported when submitting to a closed runner.
var ErrClosed = errors.New("tasks: runner closed")

// Func is one unit of deferred work.
type Func func(ctx context.Context) error

// ResultFunc observes every finished or dropped task.
type ResultFunc func(name string, err error)

// Options size the runner.
type Options struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	OnResult    ResultFunc
}

type task struct {
	name string
	fn   Func
}

// Runner executes fire-and-forget work after the caller has moved on.
// Tasks run at most once; failures are logged and never retried.
type Runner struct {
	opts   Options
	queue  chan task
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts a runner with opts.Workers goroutines.
func New(opts Options, logger zerolog.Logger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 5 * time.Second
	}

	r := &Runner{
		opts:   opts,
		queue:  make(chan task, opts.QueueSize),
		logger: logger.With().Str("component", "tasks").Logger(),
	}
	r.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go r.work()
	}
	return r
}

// Submit enqueues fn without blocking. It returns ErrQueueFull or ErrClosed
// when the task was dropped.
func (r *Runner) Submit(name string, fn Func) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.report(name, ErrClosed)
		return ErrClosed
	}

	select {
	case r.queue <- task{name: name, fn: fn}:
		return nil
	default:
		r.logger.Warn().Str("task", name).Msg("deferred task dropped: queue full")
		r.report(name, ErrQueueFull)
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones until ctx expires.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.logger.Warn().Int("pending", len(r.queue)).Msg("deferred tasks abandoned at shutdown")
		return ctx.Err()
	}
}

func (r *Runner) work() {
	defer r.wg.Done()
	for t := range r.queue {
		err := r.run(t)
		if err != nil {
			r.logger.Error().Err(err).Str("task", t.name).Msg("deferred task failed")
		}
		r.report(t.name, err)
	}
}

func (r *Runner) run(t task) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.TaskTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return t.fn(ctx)
}

func (r *Runner) report(name string, err error) {
	if r.opts.OnResult != nil {
		r.opts.OnResult(name, err)
	}
}
