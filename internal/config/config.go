// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers defaults, an optional YAML file and FLOODWATCH_ env vars.
// - Errors returned to callers wrap ErrInvalidConfig or ErrLoadConfig.
package config

import (
	"context"
	"time"
)

// Known values for the enumerated settings.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"

	TransportMock = "mock"
	TransportHTTP = "http"

	PhotoLocalCheck = "local-check"
	PhotoHTTP       = "http"
	PhotoGCS        = "gcs"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DatabaseDriver selects the submission store: sqlite or memory.
	DatabaseDriver string `koanf:"database_driver"`
	DatabasePath   string `koanf:"database_path"`

	// UploadDir is where captured photos live on local disk.
	UploadDir string `koanf:"upload_dir"`

	// Transport selects the delivery client: mock or http.
	Transport      string `koanf:"transport"`
	SyncURL        string `koanf:"sync_url"`
	SyncTimeoutMS  int    `koanf:"sync_timeout_ms"`
	SyncRetryCount int    `koanf:"sync_retry_count"`

	// PhotoStore selects photo transfer: local-check, http or gcs.
	PhotoStore         string `koanf:"photo_store"`
	GCSBucket          string `koanf:"gcs_bucket"`
	GCSPrefix          string `koanf:"gcs_prefix"`
	GCSCredentialsFile string `koanf:"gcs_credentials_file"`

	SyncIntervalSec     int `koanf:"sync_interval_sec"`
	SyncErrorBackoffSec int `koanf:"sync_error_backoff_sec"`
	SyncItemPauseMS     int `koanf:"sync_item_pause_ms"`

	// MaxSyncAttempts caps delivery attempts per submission; 0 is unlimited.
	MaxSyncAttempts int  `koanf:"max_sync_attempts"`
	BackgroundSync  bool `koanf:"background_sync"`

	// RedisAddr enables the cross-instance pass lock when set.
	RedisAddr       string `koanf:"redis_addr"`
	RedisLockKey    string `koanf:"redis_lock_key"`
	RedisLockTTLSec int    `koanf:"redis_lock_ttl_sec"`

	// TamperTimezone is the IANA zone used for the unusual-hours check.
	TamperTimezone   string  `koanf:"tamper_timezone"`
	GeofenceRadiusM  float64 `koanf:"geofence_radius_m"`
	BatchDays        int     `koanf:"batch_days"`
	AgentWindowHours int     `koanf:"agent_window_hours"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		DatabaseDriver:      DriverSQLite,
		DatabasePath:        "data/floodwatch.db",
		UploadDir:           "uploads",
		Transport:           TransportMock,
		SyncTimeoutMS:       10_000,
		PhotoStore:          PhotoLocalCheck,
		SyncIntervalSec:     300,
		SyncErrorBackoffSec: 60,
		SyncItemPauseMS:     100,
		BackgroundSync:      true,
		RedisLockKey:        "floodwatch:sync:pass",
		RedisLockTTLSec:     600,
		TamperTimezone:      "UTC",
		GeofenceRadiusM:     50,
		BatchDays:           30,
		AgentWindowHours:    24,
	}
}

func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutMS) * time.Millisecond
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSec) * time.Second
}

func (c *Config) SyncErrorBackoff() time.Duration {
	return time.Duration(c.SyncErrorBackoffSec) * time.Second
}

func (c *Config) SyncItemPause() time.Duration {
	return time.Duration(c.SyncItemPauseMS) * time.Millisecond
}

func (c *Config) RedisLockTTL() time.Duration {
	return time.Duration(c.RedisLockTTLSec) * time.Second
}

func (c *Config) AgentWindow() time.Duration {
	return time.Duration(c.AgentWindowHours) * time.Hour
}

// Location resolves TamperTimezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.TamperTimezone)
}
