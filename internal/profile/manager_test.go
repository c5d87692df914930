package profile

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/code42/code42cli/internal/storage"
)

// --- Mock store ---

type mockStore struct {
	*storage.Store

	mu        sync.Mutex
	listCalls int
}

func newMockStore(t *testing.T) *mockStore {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &mockStore{Store: s}
}

func (m *mockStore) ListProfiles() ([]storage.Profile, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()
	return m.Store.ListProfiles()
}

// --- Mock secrets ---

type mockSecrets struct {
	mu        sync.Mutex
	passwords map[string]string
}

func newMockSecrets() *mockSecrets {
	return &mockSecrets{passwords: make(map[string]string)}
}

func (m *mockSecrets) Password(profile string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.passwords[profile]
	if !ok {
		return "", errors.New("no password")
	}
	return p, nil
}

func (m *mockSecrets) SetPassword(profile, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwords[profile] = password
	return nil
}

func (m *mockSecrets) DeletePassword(profile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.passwords, profile)
	return nil
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Tests ---

func validSpec(name string) Spec {
	return Spec{
		Name:      name,
		ServerURL: "console.example.com/",
		Username:  "admin@example.com",
		Password:  "pw-" + name,
	}
}

func TestCreateFirstProfileBecomesDefault(t *testing.T) {
	store := newMockStore(t)
	secrets := newMockSecrets()
	mgr := NewManager(store, secrets, nil)

	p, err := mgr.Create(validSpec("work"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !p.IsDefault {
		t.Error("first profile should be default")
	}
	if p.ServerURL != "https://console.example.com" {
		t.Errorf("ServerURL = %q, want normalized https URL", p.ServerURL)
	}
	if secrets.passwords["work"] != "pw-work" {
		t.Errorf("password not stored: %v", secrets.passwords)
	}

	second, err := mgr.Create(validSpec("home"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if second.IsDefault {
		t.Error("second profile should not become default")
	}

	def, err := mgr.Get("")
	if err != nil {
		t.Fatalf("Get default error: %v", err)
	}
	if def.Name != "work" {
		t.Errorf("default = %q, want %q", def.Name, "work")
	}
}

func TestCreateDuplicate(t *testing.T) {
	mgr := NewManager(newMockStore(t), newMockSecrets(), nil)

	if _, err := mgr.Create(validSpec("work")); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Create(validSpec("work")); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		spec  Spec
		field string
	}{
		{"empty name", Spec{ServerURL: "example.com", Username: "u"}, "profile name"},
		{"bad name", Spec{Name: "has space", ServerURL: "example.com", Username: "u"}, "profile name"},
		{"no server", Spec{Name: "x", Username: "u"}, "server"},
		{"bad server", Spec{Name: "x", ServerURL: "http://", Username: "u"}, "server"},
		{"no username", Spec{Name: "x", ServerURL: "example.com"}, "username"},
	}
	mgr := NewManager(newMockStore(t), newMockSecrets(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.Create(tt.spec)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
			if !verr.Usage() {
				t.Error("validation errors should be usage errors")
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	mgr := NewManager(newMockStore(t), newMockSecrets(), nil)

	_, err := mgr.Get("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err.Error() != "Profile 'nope' does not exist." {
		t.Errorf("message = %q", err.Error())
	}

	_, err = mgr.Get("")
	if !errors.Is(err, ErrNoDefault) {
		t.Errorf("expected ErrNoDefault, got %v", err)
	}
}

func TestUse(t *testing.T) {
	mgr := NewManager(newMockStore(t), newMockSecrets(), nil)
	mgr.Create(validSpec("work"))
	mgr.Create(validSpec("home"))

	if err := mgr.Use("home"); err != nil {
		t.Fatalf("Use error: %v", err)
	}
	def, _ := mgr.Get("")
	if def.Name != "home" {
		t.Errorf("default = %q, want %q", def.Name, "home")
	}
	if err := mgr.Use("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesCheckpointsAndPassword(t *testing.T) {
	store := newMockStore(t)
	secrets := newMockSecrets()
	mgr := NewManager(store, secrets, nil)
	mgr.Create(validSpec("work"))

	if err := store.ReplaceCheckpoint("work", "daily", 1579500000); err != nil {
		t.Fatal(err)
	}

	if err := mgr.Delete("work"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := store.GetCheckpoint("work", "daily"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("checkpoint survived profile delete: %v", err)
	}
	if _, ok := secrets.passwords["work"]; ok {
		t.Error("password survived profile delete")
	}
	if err := mgr.Delete("work"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPassword(t *testing.T) {
	mgr := NewManager(newMockStore(t), newMockSecrets(), nil)
	p, _ := mgr.Create(validSpec("work"))

	got, err := mgr.Password(p)
	if err != nil {
		t.Fatal(err)
	}
	if got != "pw-work" {
		t.Errorf("Password = %q", got)
	}

	if err := mgr.SetPassword("work", "rotated"); err != nil {
		t.Fatal(err)
	}
	if got, _ := mgr.Password(p); got != "rotated" {
		t.Errorf("Password after rotate = %q", got)
	}
	if err := mgr.SetPassword("nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCacheTTL(t *testing.T) {
	store := newMockStore(t)
	clock := &mockClock{now: time.Now()}
	mgr := NewManagerWithClock(store, newMockSecrets(), nil, clock, 60*time.Second)
	mgr.Create(validSpec("work"))

	mgr.List()
	mgr.List()

	store.mu.Lock()
	calls := store.listCalls
	store.mu.Unlock()

	if calls != 1 {
		t.Errorf("expected 1 store call (cache hit on second), got %d", calls)
	}
}

func TestCacheInvalidation(t *testing.T) {
	store := newMockStore(t)
	clock := &mockClock{now: time.Now()}
	ttl := 60 * time.Second
	mgr := NewManagerWithClock(store, newMockSecrets(), nil, clock, ttl)
	mgr.Create(validSpec("work"))

	mgr.List()

	// Advance past TTL
	clock.Advance(ttl + time.Second)
	mgr.List()

	// Writes drop the cache immediately.
	mgr.Create(validSpec("home"))
	profiles, _ := mgr.List()

	store.mu.Lock()
	calls := store.listCalls
	store.mu.Unlock()

	if calls != 3 {
		t.Errorf("expected 3 store calls, got %d", calls)
	}
	if len(profiles) != 2 {
		t.Errorf("expected 2 profiles after create, got %d", len(profiles))
	}
}
