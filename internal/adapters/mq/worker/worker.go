// Package worker runs background jobs on a fixed schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/floodwatch/pkg/logger"
)

// Default worker configuration constants.
const (
	defaultInterval = 300 * time.Second
	defaultBackoff  = 60 * time.Second
)

// ErrNotRunning is returned by Stop when the worker was never started.
var ErrNotRunning = errors.New("worker not running")

// Job is one unit of periodic work. An error delays the next run by the
// error back-off instead of the interval.
type Job func(ctx context.Context) error

// Periodic runs a Job repeatedly until stopped.
type Periodic struct {
	job        Job
	name       string
	interval   time.Duration
	backoff    time.Duration
	runOnStart bool
	logger     logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	alive  atomic.Bool
}

// NewPeriodic creates a stopped worker for job.
func NewPeriodic(job Job, opts ...Option) *Periodic {
	w := &Periodic{
		job:        job,
		name:       "worker",
		interval:   defaultInterval,
		backoff:    defaultBackoff,
		runOnStart: true,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Start launches the loop. It returns false if the loop is already running.
func (w *Periodic) Start(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.alive.Load() {
		w.logger.Info(ctx, "worker already running")
		return false
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.done = make(chan struct{})
	w.alive.Store(true)
	go w.run(runCtx, w.done)

	w.logger.Info(ctx, "worker started",
		logger.Duration("interval", w.interval),
		logger.Duration("error_backoff", w.backoff))
	return true
}

// Stop cancels the job context and waits for the loop to exit or for ctx
// to expire. A job that ignores the cancellation keeps Stop waiting.
func (w *Periodic) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}

	cancel()
	select {
	case <-done:
		w.logger.Info(ctx, "worker stopped")
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Alive reports whether the loop goroutine is running.
func (w *Periodic) Alive() bool {
	return w.alive.Load()
}

func (w *Periodic) run(ctx context.Context, done chan struct{}) {
	defer func() {
		w.alive.Store(false)
		close(done)
	}()

	wait := time.Duration(0)
	if !w.runOnStart {
		wait = w.interval
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait = w.interval
		if err := w.safeRun(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error(ctx, "job failed, backing off",
				logger.Duration("backoff", w.backoff), logger.Error(err))
			wait = w.backoff
		}
		timer.Reset(wait)
	}
}

func (w *Periodic) safeRun(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return w.job(ctx)
}
