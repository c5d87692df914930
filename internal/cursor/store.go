// Package cursor persists the last delivered event timestamp for named
// incremental extractions, one value per (profile, checkpoint name).
package cursor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/code42/code42cli/internal/storage"
)

// ErrStorageUnavailable wraps any failure of the underlying checkpoint storage.
var ErrStorageUnavailable = errors.New("checkpoint storage unavailable")

// CheckpointStore defines the storage operations the Store needs.
// Implemented by storage.Store.
type CheckpointStore interface {
	GetCheckpoint(profile, name string) (storage.Checkpoint, error)
	ReplaceCheckpoint(profile, name string, value float64) error
	DeleteCheckpoint(profile, name string) error
	ListCheckpoints(profile string) ([]storage.Checkpoint, error)
}

// Store reads and writes checkpoints scoped to a single profile.
type Store struct {
	db      CheckpointStore
	profile string
}

// New returns a Store bound to profile.
func New(db CheckpointStore, profile string) *Store {
	return &Store{db: db, profile: profile}
}

// Profile returns the profile name the store is scoped to.
func (s *Store) Profile() string {
	return s.profile
}

// Get returns the stored timestamp for name. ok is false when no checkpoint
// has been recorded yet.
func (s *Store) Get(ctx context.Context, name string) (ts float64, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	c, err := s.db.GetCheckpoint(s.profile, name)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: reading checkpoint %q: %v", ErrStorageUnavailable, name, err)
	}
	return c.Value, true, nil
}

// Replace overwrites the stored timestamp for name.
func (s *Store) Replace(ctx context.Context, name string, ts float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.ReplaceCheckpoint(s.profile, name, ts); err != nil {
		return fmt.Errorf("%w: writing checkpoint %q: %v", ErrStorageUnavailable, name, err)
	}
	return nil
}

// Delete removes the checkpoint for name. Removing an absent checkpoint is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DeleteCheckpoint(s.profile, name); err != nil {
		return fmt.Errorf("%w: deleting checkpoint %q: %v", ErrStorageUnavailable, name, err)
	}
	return nil
}

// Entry is a checkpoint as shown to the user.
type Entry struct {
	Name      string
	Timestamp float64
	UpdatedAt time.Time
}

// Time converts the stored epoch seconds into a UTC time.
func (e Entry) Time() time.Time {
	return FromEpoch(e.Timestamp)
}

// List returns all checkpoints of the profile ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.db.ListCheckpoints(s.profile)
	if err != nil {
		return nil, fmt.Errorf("%w: listing checkpoints: %v", ErrStorageUnavailable, err)
	}
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = Entry{Name: r.Name, Timestamp: r.Value, UpdatedAt: r.UpdatedAt}
	}
	return entries, nil
}

// FromEpoch converts fractional epoch seconds into a UTC time with
// microsecond precision.
func FromEpoch(ts float64) time.Time {
	return time.UnixMicro(int64(math.Round(ts * 1e6))).UTC()
}

// ToEpoch converts t into fractional epoch seconds.
func ToEpoch(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}
