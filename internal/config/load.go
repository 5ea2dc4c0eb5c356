package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration environment variable,
// e.g. SCRY_SYNC_STRATEGY for sync.strategy.
const EnvPrefix = "SCRY"

// Options controls where Load looks for configuration.
type Options struct {
	// ConfigFile is an explicit config file. When empty, config.yaml is looked
	// up in the working directory and missing files are ignored.
	ConfigFile string

	// EnvFile is a dotenv file loaded into the process environment before
	// reading variables. Missing files are ignored.
	EnvFile string
}

// setDefaults registers a default for every key so that viper's
// AutomaticEnv can bind it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrations_dir", "")
	v.SetDefault("database.probe_interval", 15*time.Second)

	v.SetDefault("cache.path", "scry-cache.db")
	v.SetDefault("cache.ttl", 30*time.Minute)

	v.SetDefault("sync.strategy", "merge")
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.tick_interval", 5*time.Second)
	v.SetDefault("sync.retry_base_delay", time.Second)
	v.SetDefault("sync.max_retry_attempts", 5)
	v.SetDefault("sync.workers", 2)
	v.SetDefault("sync.queue_size", 64)
	v.SetDefault("sync.concurrency", 4)
}

// Load reads configuration from defaults, an optional config file and
// environment variables, in increasing order of precedence, and validates
// the result.
func Load() (*Config, error) {
	return LoadWithOptions(Options{EnvFile: ".env"})
}

// LoadWithOptions is Load with explicit file locations.
func LoadWithOptions(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
