package profile

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/code42/code42cli/internal/storage"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SaveProfile(p storage.Profile) error
	GetProfile(name string) (storage.Profile, error)
	GetDefaultProfile() (storage.Profile, error)
	ListProfiles() ([]storage.Profile, error)
	SetDefaultProfile(name string) error
	DeleteProfile(name string) error
}

// SecretStore keeps profile passwords. Implemented by config.Keychain.
type SecretStore interface {
	Password(profile string) (string, error)
	SetPassword(profile, password string) error
	DeletePassword(profile string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

var profileNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("profilename", func(fl validator.FieldLevel) bool {
		return profileNameRe.MatchString(fl.Field().String())
	})
	return v
}

// Manager provides cached access to the profiles stored in SQLite.
type Manager struct {
	store    ProfileStore
	secrets  SecretStore
	clock    Clock
	ttl      time.Duration
	validate *validator.Validate
	logger   *slog.Logger

	mu       sync.RWMutex
	cached   []storage.Profile
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore, secrets SecretStore, logger *slog.Logger) *Manager {
	return NewManagerWithClock(store, secrets, logger, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, secrets SecretStore, logger *slog.Logger, clock Clock, ttl time.Duration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		secrets:  secrets,
		clock:    clock,
		ttl:      ttl,
		validate: newValidator(),
		logger:   logger,
	}
}

// Validate checks s and returns a *ValidationError for the first bad field.
func (m *Manager) Validate(s Spec) error {
	s.ServerURL = normalizeURL(s.ServerURL)
	err := m.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &ValidationError{
		Field:  fieldName(fe.Field()),
		Value:  fmt.Sprintf("%v", fe.Value()),
		Reason: reason(fe),
	}
}

func fieldName(f string) string {
	switch f {
	case "ServerURL":
		return "server"
	case "Username":
		return "username"
	default:
		return "profile name"
	}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "url":
		return "must be a valid URL"
	case "profilename":
		return "may only contain letters, digits, '.', '_' and '-'"
	case "max":
		return "is too long"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// Create validates and stores a new profile. The password, when given, goes to
// the secret store. The first profile created becomes the default.
func (m *Manager) Create(s Spec) (storage.Profile, error) {
	if err := m.Validate(s); err != nil {
		return storage.Profile{}, err
	}
	if _, err := m.store.GetProfile(s.Name); err == nil {
		return storage.Profile{}, fmt.Errorf("%w: %s", ErrExists, s.Name)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.Profile{}, fmt.Errorf("checking profile %q: %w", s.Name, err)
	}

	p := storage.Profile{
		Name:            s.Name,
		ServerURL:       normalizeURL(s.ServerURL),
		Username:        s.Username,
		IgnoreSSLErrors: s.IgnoreSSLErrors,
		CreatedAt:       m.clock.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil

	if err := m.store.SaveProfile(p); err != nil {
		return storage.Profile{}, fmt.Errorf("saving profile %q: %w", p.Name, err)
	}
	if s.Password != "" && m.secrets != nil {
		if err := m.secrets.SetPassword(p.Name, s.Password); err != nil {
			return storage.Profile{}, err
		}
	}

	if _, err := m.store.GetDefaultProfile(); errors.Is(err, storage.ErrNotFound) {
		if err := m.store.SetDefaultProfile(p.Name); err != nil {
			return storage.Profile{}, fmt.Errorf("setting default profile: %w", err)
		}
		p.IsDefault = true
	}
	m.logger.Debug("profile created", "name", p.Name, "server", p.ServerURL, "default", p.IsDefault)
	return p, nil
}

// Get returns the named profile, or the default profile when name is empty.
func (m *Manager) Get(name string) (storage.Profile, error) {
	var (
		p   storage.Profile
		err error
	)
	if name == "" {
		p, err = m.store.GetDefaultProfile()
	} else {
		p, err = m.store.GetProfile(name)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Profile{}, &NotFoundError{Name: name}
	}
	if err != nil {
		return storage.Profile{}, fmt.Errorf("loading profile: %w", err)
	}
	return p, nil
}

// List returns every profile ordered by name.
func (m *Manager) List() ([]storage.Profile, error) {
	// Fast path: read lock for cache hit.
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		out := append([]storage.Profile(nil), m.cached...)
		m.mu.RUnlock()
		return out, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return append([]storage.Profile(nil), m.cached...), nil
	}

	profiles, err := m.store.ListProfiles()
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	if profiles == nil {
		profiles = []storage.Profile{}
	}
	m.cached = profiles
	m.cachedAt = m.clock.Now()
	return append([]storage.Profile(nil), profiles...), nil
}

// Use makes name the default profile.
func (m *Manager) Use(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil

	err := m.store.SetDefaultProfile(name)
	if errors.Is(err, storage.ErrNotFound) {
		return &NotFoundError{Name: name}
	}
	if err != nil {
		return fmt.Errorf("setting default profile: %w", err)
	}
	return nil
}

// Delete removes the profile, its checkpoints and its stored password.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil

	err := m.store.DeleteProfile(name)
	if errors.Is(err, storage.ErrNotFound) {
		return &NotFoundError{Name: name}
	}
	if err != nil {
		return fmt.Errorf("deleting profile %q: %w", name, err)
	}
	if m.secrets != nil {
		if err := m.secrets.DeletePassword(name); err != nil {
			m.logger.Warn("profile deleted but password could not be removed", "name", name, "error", err)
		}
	}
	return nil
}

// Password returns the stored password for p.
func (m *Manager) Password(p storage.Profile) (string, error) {
	if m.secrets == nil {
		return "", fmt.Errorf("no secret store configured for profile %q", p.Name)
	}
	return m.secrets.Password(p.Name)
}

// SetPassword replaces the stored password for an existing profile.
func (m *Manager) SetPassword(name, password string) error {
	if _, err := m.Get(name); err != nil {
		return err
	}
	if m.secrets == nil {
		return fmt.Errorf("no secret store configured for profile %q", name)
	}
	return m.secrets.SetPassword(name, password)
}
