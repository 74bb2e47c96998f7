package repository

import (
	"time"

	"github.com/okian/floodwatch/pkg/logger"
)

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	log     logger.Logger
	now     func() time.Time
	journal string
}

func defaultOptions() options {
	return options{log: logger.Nop(), now: time.Now, journal: "WAL"}
}

// WithLogger sets the logger used for store diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l.Named("repository")
		}
	}
}

// WithClock overrides the time source for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithJournalMode sets the SQLite journal mode; ignored by the memory store.
func WithJournalMode(mode string) Option {
	return func(o *options) {
		if mode != "" {
			o.journal = mode
		}
	}
}
