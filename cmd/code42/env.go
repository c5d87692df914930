package main

import (
	"fmt"
	"log/slog"

	"github.com/code42/code42cli/internal/config"
	"github.com/code42/code42cli/internal/profile"
	"github.com/code42/code42cli/internal/sdk"
	"github.com/code42/code42cli/internal/storage"
)

// Factories replaced by tests.
var (
	loadConfig     = config.Load
	newSecretStore = func() profile.SecretStore { return config.NewKeychain() }
)

// env holds what a command needs: settings, the local store and the profile
// manager. Commands close it when done.
type env struct {
	cfg      config.Config
	store    *storage.Store
	profiles *profile.Manager
	logger   *slog.Logger
}

func openEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogging(cfg.Log.Level)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return &env{
		cfg:      cfg,
		store:    store,
		profiles: profile.NewManager(store, newSecretStore(), logger),
		logger:   logger,
	}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// profile returns the --profile profile, or the default one.
func (e *env) profile() (storage.Profile, error) {
	return e.profiles.Get(profileName)
}

// client returns an authenticated-on-demand API client for p.
func (e *env) client(p storage.Profile) (*sdk.Client, error) {
	password, err := e.profiles.Password(p)
	if err != nil {
		return nil, fmt.Errorf("%w (set one with 'code42 profile reset-pw %s' or %s)", err, p.Name, config.PasswordEnv)
	}
	return sdk.New(sdk.Config{
		ServerURL:         p.ServerURL,
		Username:          p.Username,
		Password:          password,
		IgnoreSSLErrors:   p.IgnoreSSLErrors,
		Timeout:           e.cfg.API.TimeoutDuration(),
		RequestsPerSecond: e.cfg.API.RequestsPerSecond,
		MaxRetries:        uint64(e.cfg.API.MaxRetries),
		Logger:            e.logger,
	}), nil
}
