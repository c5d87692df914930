package timerange

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDateFormat       = errors.New("invalid date format")
	ErrBeginAfterEnd           = errors.New("begin after end")
	ErrBeginTooOld             = errors.New("begin too old")
	ErrCheckpointRequiresBegin = errors.New("checkpoint requires begin")

	// ErrOutOfRange is returned by Parse for a relative value too large to
	// represent as a time.Duration (about 292 years).
	ErrOutOfRange = errors.New("relative value out of range")

	// ErrNoLookup is returned by Resolve when a checkpoint is named but no
	// Lookup is configured.
	ErrNoLookup = errors.New("checkpoint lookup not configured")
)

// Error is a usage error raised while resolving a time range. It is always
// detected before any request reaches the remote platform.
type Error struct {
	Flag   string
	Value  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Value == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid value for '%s' (%q): %s", e.Flag, e.Value, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Usage marks the error as a command line usage problem.
func (e *Error) Usage() bool {
	return true
}
