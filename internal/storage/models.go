package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Profile is a named set of connection settings for one vendor tenant.
// The password is never stored here; it lives in the platform secret store.
type Profile struct {
	Name            string
	ServerURL       string
	Username        string
	IgnoreSSLErrors bool
	IsDefault       bool
	CreatedAt       time.Time
}

// Checkpoint is the last delivered event boundary for one
// (profile, checkpoint name) pair, in UTC epoch seconds.
type Checkpoint struct {
	Profile   string
	Name      string
	Value     float64
	UpdatedAt time.Time
}
