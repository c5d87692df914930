package config

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	data map[string]string
}

func newMemBackend(kv map[string]string) *memBackend {
	if kv == nil {
		kv = map[string]string{}
	}
	return &memBackend{data: kv}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(v)
	return i, true, err
}

func (m *memBackend) SetString(key, val string) error {
	m.data[key] = val
	return nil
}

func (m *memBackend) SetInt(key string, val int) error {
	m.data[key] = strconv.Itoa(val)
	return nil
}

func (m *memBackend) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied with an empty backend.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Search.RetentionDays != 90 {
		t.Errorf("Search.RetentionDays = %d, want 90", cfg.Search.RetentionDays)
	}
	if cfg.Search.PageSize != 10000 {
		t.Errorf("Search.PageSize = %d, want 10000", cfg.Search.PageSize)
	}
	if cfg.Bulk.Workers != 10 {
		t.Errorf("Bulk.Workers = %d, want 10", cfg.Bulk.Workers)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
	if cfg.API.TimeoutDuration() != 60*time.Second {
		t.Errorf("API.TimeoutDuration() = %v, want 60s", cfg.API.TimeoutDuration())
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := newMemBackend(map[string]string{
		"storage.data_dir":        "/tmp/code42cli-test",
		"log.level":               "DEBUG",
		"search.retention_days":   "30",
		"search.page_size":        "500",
		"bulk.workers":            "4",
		"api.timeout":             "5s",
		"api.requests_per_second": "2.5",
		"api.max_retries":         "0",
	})
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/code42cli-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want lowercased", cfg.Log.Level)
	}
	if cfg.Search.RetentionDays != 30 || cfg.Search.PageSize != 500 {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.Bulk.Workers != 4 {
		t.Errorf("Bulk.Workers = %d", cfg.Bulk.Workers)
	}
	if cfg.API.TimeoutDuration() != 5*time.Second {
		t.Errorf("API.Timeout = %q", cfg.API.Timeout)
	}
	if cfg.API.RequestsPerSecond != 2.5 {
		t.Errorf("API.RequestsPerSecond = %v", cfg.API.RequestsPerSecond)
	}
	if cfg.API.MaxRetries != 0 {
		t.Errorf("API.MaxRetries = %d", cfg.API.MaxRetries)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("CODE42_SEARCH_RETENTION_DAYS", "7")
	t.Setenv("CODE42_API_REQUESTS_PER_SECOND", "0.5")

	b := newMemBackend(map[string]string{"search.retention_days": "30"})
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Search.RetentionDays != 7 {
		t.Errorf("Search.RetentionDays = %d, want 7", cfg.Search.RetentionDays)
	}
	if cfg.API.RequestsPerSecond != 0.5 {
		t.Errorf("API.RequestsPerSecond = %v, want 0.5", cfg.API.RequestsPerSecond)
	}
}

func TestInvalidValuesRejected(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"search.page_size", "20000"},
		{"search.retention_days", "0"},
		{"bulk.workers", "0"},
		{"log.level", "verbose"},
		{"api.timeout", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(newMemBackend(map[string]string{tt.key: tt.value}))
			if err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), "invalid config") {
				t.Errorf("error = %q, want it to contain %q", err, "invalid config")
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	b := newMemBackend(nil)

	if err := setKeyWith(b, "bulk.workers", "3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.data["bulk.workers"] != "3" {
		t.Errorf("bulk.workers = %q", b.data["bulk.workers"])
	}
	if err := setKeyWith(b, "api.requests_per_second", "1.5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := setKeyWith(b, "bulk.workers", "many"); err == nil {
		t.Error("expected error for non-integer value")
	}
	if err := setKeyWith(b, "api.requests_per_second", "fast"); err == nil {
		t.Error("expected error for non-numeric value")
	}
	if err := setKeyWith(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestUnsetKey(t *testing.T) {
	clearEnv(t)
	b := newMemBackend(map[string]string{"bulk.workers": "3"})

	if err := unsetKeyWith(b, "bulk.workers"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bulk.Workers != 10 {
		t.Errorf("Bulk.Workers = %d after unset, want default 10", cfg.Bulk.Workers)
	}
	if err := unsetKeyWith(b, "no.such.key"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllCoversValidKeys(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(newMemBackend(nil))
	if err != nil {
		t.Fatal(err)
	}

	all := ShowAll(cfg)
	keys := ValidKeys()
	if len(all) != len(keys) {
		t.Fatalf("ShowAll returned %d entries, ValidKeys %d", len(all), len(keys))
	}
	for i, info := range all {
		if info.Key != keys[i] {
			t.Errorf("entry %d: key %q, want %q", i, info.Key, keys[i])
		}
		if !strings.HasPrefix(info.EnvVar, "CODE42_") {
			t.Errorf("entry %q: env var %q", info.Key, info.EnvVar)
		}
	}
}
