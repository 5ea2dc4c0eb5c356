package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Cache    CacheConfig    `mapstructure:"cache" validate:"required"`
	Sync     SyncConfig     `mapstructure:"sync" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig configures the remote store. An empty URL runs the service
// against the local cache only, permanently offline.
type DatabaseConfig struct {
	URL           string        `mapstructure:"url" validate:"omitempty,url"`
	MigrationsDir string        `mapstructure:"migrations_dir"`
	ProbeInterval time.Duration `mapstructure:"probe_interval" validate:"gt=0"`
}

// CacheConfig configures the durable local cache.
type CacheConfig struct {
	// Path is the SQLite file; ":memory:" keeps the cache in memory.
	Path string        `mapstructure:"path" validate:"required"`
	TTL  time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	Strategy         string        `mapstructure:"strategy" validate:"required,oneof=local remote merge manual"`
	Interval         time.Duration `mapstructure:"interval" validate:"gt=0"`
	TickInterval     time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay" validate:"gt=0"`
	MaxRetryAttempts int           `mapstructure:"max_retry_attempts" validate:"gte=1,lte=20"`
	Workers          int           `mapstructure:"workers" validate:"gte=1,lte=64"`
	QueueSize        int           `mapstructure:"queue_size" validate:"gte=1"`
	// Concurrency bounds how many users one pass syncs at a time.
	Concurrency int `mapstructure:"concurrency" validate:"gte=1,lte=64"`
}
