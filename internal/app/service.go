// Package service wires the store, tamper engine and reconciler into the
// dependencies required by the HTTP API and the operator CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/floodwatch/internal/adapters/lock"
	"github.com/okian/floodwatch/internal/adapters/repository"
	"github.com/okian/floodwatch/internal/adapters/transport"
	"github.com/okian/floodwatch/internal/config"
	"github.com/okian/floodwatch/internal/domain/reconcile"
	"github.com/okian/floodwatch/internal/domain/tamper"
	"github.com/okian/floodwatch/pkg/logger"
	"github.com/okian/floodwatch/pkg/metrics"
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Service owns the long-lived components of one floodwatch process.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store     repository.Store
	engine    *tamper.Engine
	recon     *reconcile.Reconciler
	deliverer transport.Deliverer
	photos    transport.PhotoTransfer
	locker    lock.Locker

	// closers run in reverse order on Stop
	closers []func() error

	// State
	started   bool
	startedAt time.Time
	now       func() time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore replaces the configured database driver.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		s.store = st
	}
}

// WithDeliverer replaces the configured transport.
func WithDeliverer(d transport.Deliverer) Option {
	return func(s *Service) {
		s.deliverer = d
	}
}

// WithPhotoTransfer replaces the configured photo store.
func WithPhotoTransfer(p transport.PhotoTransfer) Option {
	return func(s *Service) {
		s.photos = p
	}
}

// WithLocker replaces the configured pass lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service for cfg. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New(context.Background())
	}
	s := &Service{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and builds the engine and reconciler. When
// background_sync is enabled the periodic loop is started too.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting floodwatch service...")

	if err := s.build(ctx); err != nil {
		s.closeAll(ctx)
		return err
	}

	if s.cfg.BackgroundSync {
		s.recon.StartBackground(ctx)
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "floodwatch service started",
		logger.String("database_driver", s.cfg.DatabaseDriver),
		logger.String("transport", s.cfg.Transport),
		logger.String("photo_store", s.cfg.PhotoStore),
		logger.Bool("background_sync", s.cfg.BackgroundSync),
		logger.Bool("pass_lock", s.locker != nil),
	)
	return nil
}

func (s *Service) build(ctx context.Context) error {
	if s.store == nil {
		st, err := openStore(ctx, s.cfg, s.logger)
		if err != nil {
			return err
		}
		s.store = st
		s.closers = append(s.closers, st.Close)
	}
	if s.deliverer == nil {
		d, err := newDeliverer(s.cfg, s.logger)
		if err != nil {
			return err
		}
		s.deliverer = d
	}
	if s.photos == nil {
		p, closer, err := newPhotoTransfer(ctx, s.cfg, s.deliverer, s.logger)
		if err != nil {
			return err
		}
		s.photos = p
		if closer != nil {
			s.closers = append(s.closers, closer)
		}
	}
	if s.locker == nil && s.cfg.RedisAddr != "" {
		rl, err := lock.NewRedisLocker(ctx, s.cfg.RedisAddr, s.cfg.RedisLockKey, s.cfg.RedisLockTTL())
		if err != nil {
			return err
		}
		s.locker = rl
		s.closers = append(s.closers, rl.Close)
	}

	loc, err := s.cfg.Location()
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	s.engine = tamper.New(s.store,
		tamper.WithLogger(s.logger),
		tamper.WithLocation(loc),
		tamper.WithClock(s.now))

	ropts := []reconcile.Option{
		reconcile.WithLogger(s.logger),
		reconcile.WithClock(s.now),
		reconcile.WithItemPause(s.cfg.SyncItemPause()),
		reconcile.WithMaxAttempts(s.cfg.MaxSyncAttempts),
		reconcile.WithSchedule(s.cfg.SyncInterval(), s.cfg.SyncErrorBackoff()),
	}
	if s.locker != nil {
		ropts = append(ropts, reconcile.WithLocker(s.locker))
	}
	s.recon = reconcile.New(s.store, s.deliverer, s.photos, ropts...)
	return nil
}

// Stop stops the sync loop, letting an in-flight delivery finish, and
// releases the store and clients.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping floodwatch service...")

	var err error
	if s.recon != nil {
		err = s.recon.Close(ctx)
	}
	s.closeAll(ctx)

	s.started = false
	s.logger.Info(ctx, "floodwatch service stopped")
	return err
}

func (s *Service) closeAll(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && s.logger != nil {
			s.logger.Warn(ctx, "closing component failed", logger.Error(err))
		}
	}
	s.closers = nil
}

// Store returns the submission store. It is nil before Start.
func (s *Service) Store() repository.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// Config returns the configuration the service was built with.
func (s *Service) Config() *config.Config { return s.cfg }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"database_driver": s.cfg.DatabaseDriver,
		"transport":       s.cfg.Transport,
		"photo_store":     s.cfg.PhotoStore,
		"background_sync": s.cfg.BackgroundSync,
	}

	if s.started {
		ctx := context.Background()
		stats["uptime_seconds"] = s.now().Sub(s.startedAt).Seconds()
		stats["rules"] = s.engine.Rules()
		if sites, err := s.store.ListSites(ctx); err == nil {
			stats["sites"] = len(sites)
		}
		if st, err := s.recon.Status(ctx); err == nil {
			stats["submissions"] = st.Total
			stats["pending"] = st.Pending
			stats["failed"] = st.Failed
			stats["synced"] = st.Synced
			stats["is_syncing"] = st.IsSyncing
			stats["sync_thread_alive"] = st.LoopAlive

			metrics.UpdateSyncBacklog("pending", st.Pending)
			metrics.UpdateSyncBacklog("failed", st.Failed)
			metrics.UpdateSyncBacklog("synced", st.Synced)
		}
	}

	return stats
}
