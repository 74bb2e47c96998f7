package transport

import (
	"time"

	"github.com/okian/floodwatch/pkg/logger"
)

// Option applies a configuration option to a transport.
type Option func(*options)

type options struct {
	log        logger.Logger
	timeout    time.Duration
	retries    int
	retryWait  time.Duration
	uploadDir  string
	healthPath string
	prefix     string
	credFile   string
}

func defaultOptions() options {
	return options{
		log:        logger.Nop(),
		timeout:    10 * time.Second,
		retryWait:  time.Second,
		uploadDir:  "uploads",
		healthPath: "/health",
	}
}

func apply(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the transport logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l.Named("transport")
		}
	}
}

// WithTimeout bounds each HTTP request; a timeout counts as a failure.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetries sets in-request retries for HTTP transports.
func WithRetries(n int, wait time.Duration) Option {
	return func(o *options) {
		if n >= 0 {
			o.retries = n
		}
		if wait > 0 {
			o.retryWait = wait
		}
	}
}

// WithUploadDir sets the directory local photos are read from.
func WithUploadDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.uploadDir = dir
		}
	}
}

// WithHealthPath sets the path probed by Ping.
func WithHealthPath(p string) Option {
	return func(o *options) {
		if p != "" {
			o.healthPath = p
		}
	}
}

// WithObjectPrefix prefixes object names written to cloud storage.
func WithObjectPrefix(p string) Option {
	return func(o *options) { o.prefix = p }
}

// WithCredentialsFile sets the service account file for cloud storage.
func WithCredentialsFile(path string) Option {
	return func(o *options) { o.credFile = path }
}
