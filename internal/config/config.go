package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Storage StorageConfig
	Log     LogConfig
	Search  SearchConfig
	Bulk    BulkConfig
	API     APIConfig
}

type StorageConfig struct {
	DataDir string `validate:"required"`
}

type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

type SearchConfig struct {
	// RetentionDays is how far back --begin may reach without a checkpoint.
	RetentionDays int `validate:"min=1"`
	PageSize      int `validate:"min=1,max=10000"`
}

type BulkConfig struct {
	Workers int `validate:"min=1,max=64"`
}

type APIConfig struct {
	Timeout           string  `validate:"required"`
	RequestsPerSecond float64 `validate:"min=0"`
	MaxRetries        int     `validate:"min=0,max=10"`
}

// TimeoutDuration parses Timeout, falling back to 60s.
func (c APIConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "warn",
		},
		Search: SearchConfig{
			RetentionDays: 90,
			PageSize:      10000,
		},
		Bulk: BulkConfig{
			Workers: 10,
		},
		API: APIConfig{
			Timeout:           "60s",
			RequestsPerSecond: 10,
			MaxRetries:        3,
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.code42.cli).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/code42cli/config.json.
//
// Environment variables (CODE42_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if _, err := time.ParseDuration(cfg.API.Timeout); err != nil {
		return Config{}, fmt.Errorf("invalid config: api.timeout %q: %w", cfg.API.Timeout, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
