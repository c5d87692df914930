package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "storage.data_dir", typ: kString, env: "CODE42_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "CODE42_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "search.retention_days", typ: kInt, env: "CODE42_SEARCH_RETENTION_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Search.RetentionDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.RetentionDays },
	},
	{
		key: "search.page_size", typ: kInt, env: "CODE42_SEARCH_PAGE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Search.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.PageSize },
	},
	{
		key: "bulk.workers", typ: kInt, env: "CODE42_BULK_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Bulk.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Bulk.Workers },
	},
	{
		key: "api.timeout", typ: kString, env: "CODE42_API_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.API.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Timeout },
	},
	{
		key: "api.requests_per_second", typ: kFloat, env: "CODE42_API_REQUESTS_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.API.RequestsPerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.API.RequestsPerSecond },
	},
	{
		key: "api.max_retries", typ: kInt, env: "CODE42_API_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.API.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.API.MaxRetries },
	},
}

// parse converts a raw string into the Go type of k.
func (k keyType) parse(raw string) (any, error) {
	switch k {
	case kInt:
		return strconv.Atoi(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		var (
			v   any
			ok  bool
			err error
		)
		if s.typ == kInt {
			v, ok, err = b.GetInt(s.key)
		} else {
			// Floats are stored as strings so both backends round-trip them exactly.
			var raw string
			raw, ok, err = b.GetString(s.key)
			if ok && err == nil {
				v, err = s.typ.parse(raw)
			}
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok {
			s.apply(cfg, v)
		}
	}
	return nil
}

// applyEnvOverrides lets CODE42_* variables win over stored values. An
// unparsable value is ignored with a warning.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.typ.parse(raw)
		if err != nil {
			slog.Warn("ignoring environment override", "var", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
