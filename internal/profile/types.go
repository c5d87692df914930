package profile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound  = errors.New("profile not found")
	ErrExists    = errors.New("profile already exists")
	ErrNoDefault = errors.New("no default profile")
)

// Spec is the user-supplied description of a profile.
type Spec struct {
	Name            string `validate:"required,max=64,profilename"`
	ServerURL       string `validate:"required,url"`
	Username        string `validate:"required"`
	Password        string
	IgnoreSSLErrors bool
}

// ValidationError reports invalid profile settings. It is a usage error.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Usage() bool { return true }

// NotFoundError names the missing profile.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return "No default profile set. Create one with 'code42 profile create'."
	}
	return fmt.Sprintf("Profile '%s' does not exist.", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	if e.Name == "" {
		return ErrNoDefault
	}
	return ErrNotFound
}

// normalizeURL adds an https scheme to bare hosts and trims trailing slashes.
func normalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	return strings.TrimRight(s, "/")
}
