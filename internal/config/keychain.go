package config

import (
	"errors"
	"fmt"
	"os"
)

// KeychainService is the service name profile passwords are filed under.
const KeychainService = "code42cli"

// PasswordEnv, when set, takes precedence over any stored password.
const PasswordEnv = "CODE42_PASSWORD"

// ErrNoPassword is returned when a profile has no stored password.
var ErrNoPassword = errors.New("no password stored")

// Keychain stores profile passwords in the platform secret store, keyed by
// profile name.
type Keychain struct {
	service string
}

func NewKeychain() *Keychain {
	return &Keychain{service: KeychainService}
}

// Password returns the password for profile. CODE42_PASSWORD wins when set.
func (k *Keychain) Password(profile string) (string, error) {
	if v := os.Getenv(PasswordEnv); v != "" {
		return v, nil
	}
	b, err := keychainGet(k.service, profile)
	if err != nil {
		return "", fmt.Errorf("%w for profile %q: %v", ErrNoPassword, profile, err)
	}
	if len(b) == 0 {
		return "", fmt.Errorf("%w for profile %q", ErrNoPassword, profile)
	}
	return string(b), nil
}

func (k *Keychain) SetPassword(profile, password string) error {
	if err := keychainSet(k.service, profile, password); err != nil {
		return fmt.Errorf("storing password for profile %q: %w", profile, err)
	}
	return nil
}

func (k *Keychain) DeletePassword(profile string) error {
	if err := keychainDelete(k.service, profile); err != nil {
		return fmt.Errorf("deleting password for profile %q: %w", profile, err)
	}
	return nil
}
