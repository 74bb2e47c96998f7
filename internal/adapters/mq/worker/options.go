package worker

import (
	"time"

	"github.com/okian/floodwatch/pkg/logger"
)

// Option applies a configuration option to the Periodic worker.
type Option func(*Periodic)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *Periodic) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *Periodic) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithInterval sets the wait between successful runs.
func WithInterval(d time.Duration) Option {
	return func(w *Periodic) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithErrorBackoff sets the wait after a failed run.
func WithErrorBackoff(d time.Duration) Option {
	return func(w *Periodic) {
		if d > 0 {
			w.backoff = d
		}
	}
}

// WithRunOnStart controls whether the first run happens immediately.
func WithRunOnStart(v bool) Option {
	return func(w *Periodic) { w.runOnStart = v }
}
