package reconcile

import (
	"time"

	"github.com/okian/floodwatch/internal/adapters/lock"
	"github.com/okian/floodwatch/pkg/logger"
)

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithLogger sets the reconciler logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l.Named("reconcile")
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithItemPause sets the pause between submissions within a pass.
func WithItemPause(d time.Duration) Option {
	return func(r *Reconciler) {
		if d >= 0 {
			r.itemPause = d
		}
	}
}

// WithMaxAttempts stops retrying submissions after n attempts; 0 retries forever.
func WithMaxAttempts(n int) Option {
	return func(r *Reconciler) {
		if n >= 0 {
			r.maxAttempts = n
		}
	}
}

// WithLocker guards passes with a lock shared between instances.
func WithLocker(l lock.Locker) Option {
	return func(r *Reconciler) { r.locker = l }
}

// WithSchedule sets the background interval and the back-off after a failed pass.
func WithSchedule(interval, backoff time.Duration) Option {
	return func(r *Reconciler) {
		if interval > 0 {
			r.interval = interval
		}
		if backoff > 0 {
			r.backoff = backoff
		}
	}
}
