package config

import (
	"errors"
)

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, invalid("addr must not be empty"))
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			errs = append(errs, invalid("database_path must not be empty for sqlite"))
		}
	case DriverMemory:
	default:
		errs = append(errs, invalid("unknown database_driver %q", c.DatabaseDriver))
	}
	switch c.Transport {
	case TransportMock:
	case TransportHTTP:
		if c.SyncURL == "" {
			errs = append(errs, invalid("sync_url is required for http transport"))
		}
	default:
		errs = append(errs, invalid("unknown transport %q", c.Transport))
	}
	switch c.PhotoStore {
	case PhotoLocalCheck:
	case PhotoHTTP:
		if c.SyncURL == "" {
			errs = append(errs, invalid("sync_url is required for http photo store"))
		}
	case PhotoGCS:
		if c.GCSBucket == "" {
			errs = append(errs, invalid("gcs_bucket is required for gcs photo store"))
		}
	default:
		errs = append(errs, invalid("unknown photo_store %q", c.PhotoStore))
	}
	for name, v := range map[string]int{
		"sync_interval_sec":      c.SyncIntervalSec,
		"sync_error_backoff_sec": c.SyncErrorBackoffSec,
		"sync_timeout_ms":        c.SyncTimeoutMS,
		"batch_days":             c.BatchDays,
		"agent_window_hours":     c.AgentWindowHours,
	} {
		if v <= 0 {
			errs = append(errs, invalid("%s must be positive, got %d", name, v))
		}
	}
	if c.SyncItemPauseMS < 0 || c.SyncRetryCount < 0 || c.MaxSyncAttempts < 0 {
		errs = append(errs, invalid("sync_item_pause_ms, sync_retry_count and max_sync_attempts must not be negative"))
	}
	if c.RedisAddr != "" && c.RedisLockTTLSec <= 0 {
		errs = append(errs, invalid("redis_lock_ttl_sec must be positive"))
	}
	if c.GeofenceRadiusM <= 0 {
		errs = append(errs, invalid("geofence_radius_m must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, invalid("tamper_timezone %q: %v", c.TamperTimezone, err))
	}
	return errors.Join(errs...)
}
