package service

import (
	"context"
	"fmt"

	"github.com/okian/floodwatch/internal/adapters/repository"
	"github.com/okian/floodwatch/internal/adapters/transport"
	"github.com/okian/floodwatch/internal/config"
	"github.com/okian/floodwatch/pkg/logger"
)

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverMemory:
		log.Info(ctx, "using in-memory store")
		return repository.NewMemoryStore(repository.WithLogger(log)), nil
	case config.DriverSQLite:
		return repository.OpenSQLite(ctx, cfg.DatabasePath, repository.WithLogger(log))
	}
	return nil, fmt.Errorf("%w: %q", repository.ErrUnknownDriver, cfg.DatabaseDriver)
}

func transportOptions(cfg *config.Config, log logger.Logger) []transport.Option {
	return []transport.Option{
		transport.WithLogger(log),
		transport.WithTimeout(cfg.SyncTimeout()),
		transport.WithRetries(cfg.SyncRetryCount, 0),
		transport.WithUploadDir(cfg.UploadDir),
	}
}

func newDeliverer(cfg *config.Config, log logger.Logger) (transport.Deliverer, error) {
	if cfg.Transport == config.TransportHTTP {
		return transport.NewHTTPClient(cfg.SyncURL, transportOptions(cfg, log)...)
	}
	return transport.NewMockServer(transportOptions(cfg, log)...), nil
}

// newPhotoTransfer returns the photo store and an optional closer. The http
// store reuses the delivery client when it already is one.
func newPhotoTransfer(ctx context.Context, cfg *config.Config, d transport.Deliverer, log logger.Logger) (transport.PhotoTransfer, func() error, error) {
	switch cfg.PhotoStore {
	case config.PhotoHTTP:
		if c, ok := d.(*transport.HTTPClient); ok {
			return c, nil, nil
		}
		c, err := transport.NewHTTPClient(cfg.SyncURL, transportOptions(cfg, log)...)
		return c, nil, err
	case config.PhotoGCS:
		g, err := transport.NewGCSPhotos(ctx, cfg.GCSBucket, append(transportOptions(cfg, log),
			transport.WithObjectPrefix(cfg.GCSPrefix),
			transport.WithCredentialsFile(cfg.GCSCredentialsFile))...)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	}
	return transport.NewLocalPhotoCheck(transportOptions(cfg, log)...), nil, nil
}
