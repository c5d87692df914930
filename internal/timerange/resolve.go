// Package timerange turns the raw --begin/--end values of a search command
// into UTC boundaries, applying checkpoint priority and the retention floor.
package timerange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/code42/code42cli/internal/cursor"
)

// DefaultRetentionDays is how far back the platform guarantees to keep events.
const DefaultRetentionDays = 90

const (
	dateLayout           = "2006-01-02"
	dateTimeLayout       = "2006-01-02 15:04:05"
	dateTimeMinuteLayout = "2006-01-02 15:04"
	endOfDay             = 24*time.Hour - time.Millisecond
	formatHint           = `use YYYY-MM-DD, "YYYY-MM-DD HH:MM[:SS]" or a relative value such as 30, 30m, 12h, 3d`
)

var relativePattern = regexp.MustCompile(`^(\d+)([dhm]?)$`)

// Parse interprets raw relative to now. A date without a time resolves to the
// start of the day, or to its last millisecond when isEnd is set.
func Parse(raw string, now time.Time, isEnd bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	if m := relativePattern.FindStringSubmatch(raw); m != nil {
		unit := time.Minute
		switch m[2] {
		case "d":
			unit = 24 * time.Hour
		case "h":
			unit = time.Hour
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n > math.MaxInt64/int64(unit) {
			return time.Time{}, ErrOutOfRange
		}
		return now.UTC().Add(-time.Duration(n) * unit), nil
	}

	if t, err := time.ParseInLocation(dateLayout, raw, time.UTC); err == nil {
		if isEnd {
			return t.Add(endOfDay), nil
		}
		return t, nil
	}

	for _, layout := range []string{dateTimeLayout, dateTimeMinuteLayout} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, ErrInvalidDateFormat
}

// Lookup returns the stored checkpoint for name, if any.
type Lookup func(ctx context.Context, name string) (ts float64, ok bool, err error)

// Options are the inputs of Resolve.
type Options struct {
	Begin string
	End   string
	Now   time.Time

	// Checkpoint names the checkpoint to resume from; empty disables checkpoint
	// mode. A non-empty Checkpoint requires Lookup.
	Checkpoint string
	Lookup     Lookup

	// RetentionDays bounds how old a user supplied begin may be. Zero means
	// DefaultRetentionDays.
	RetentionDays int

	Logger *slog.Logger
}

// Range is a resolved pair of optional boundaries.
type Range struct {
	Begin time.Time
	End   time.Time

	// FromCheckpoint reports that Begin came from a stored checkpoint.
	FromCheckpoint bool

	// Notice is an informational message for the user, set when a
	// checkpoint overrides the requested begin.
	Notice string
}

func (r Range) HasBegin() bool { return !r.Begin.IsZero() }
func (r Range) HasEnd() bool   { return !r.End.IsZero() }

// Resolve parses and validates the requested range.
func Resolve(ctx context.Context, opts Options) (Range, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	days := opts.RetentionDays
	if days <= 0 {
		days = DefaultRetentionDays
	}

	var r Range

	if opts.End != "" {
		end, err := Parse(opts.End, now, true)
		if errors.Is(err, ErrOutOfRange) {
			return Range{}, &Error{Flag: "--end", Value: opts.End, Reason: "too far in the past", Err: ErrOutOfRange}
		}
		if err != nil {
			return Range{}, invalidFormat("--end", opts.End)
		}
		r.End = end
	}

	if opts.Checkpoint != "" {
		if opts.Lookup == nil {
			return Range{}, fmt.Errorf("checkpoint %q: %w", opts.Checkpoint, ErrNoLookup)
		}
		ts, ok, err := opts.Lookup(ctx, opts.Checkpoint)
		if err != nil {
			return Range{}, fmt.Errorf("looking up checkpoint %q: %w", opts.Checkpoint, err)
		}
		if ok {
			r.Begin = cursor.FromEpoch(ts)
			r.FromCheckpoint = true
			stamp := r.Begin.Format(time.RFC3339)
			if opts.Begin != "" {
				r.Notice = fmt.Sprintf("Ignoring --begin value as --use-checkpoint was passed and checkpoint of %s exists.", stamp)
			} else {
				r.Notice = fmt.Sprintf("Resuming from checkpoint of %s.", stamp)
			}
			logger.Info("using stored checkpoint", "checkpoint", opts.Checkpoint, "timestamp", stamp)
		} else if opts.Begin == "" {
			return Range{}, &Error{
				Flag:   "--begin",
				Reason: "--begin date is required for --use-checkpoint when no checkpoint exists yet.",
				Err:    ErrCheckpointRequiresBegin,
			}
		}
	}

	if !r.FromCheckpoint && opts.Begin != "" {
		begin, err := Parse(opts.Begin, now, false)
		if err != nil && !errors.Is(err, ErrOutOfRange) {
			return Range{}, invalidFormat("--begin", opts.Begin)
		}
		floor := now.Add(-time.Duration(days) * 24 * time.Hour)
		if err != nil || begin.Before(floor) {
			return Range{}, &Error{
				Flag:   "--begin",
				Value:  opts.Begin,
				Reason: fmt.Sprintf("must be within %d days", days),
				Err:    ErrBeginTooOld,
			}
		}
		r.Begin = begin
	}

	if r.HasBegin() && r.HasEnd() && r.Begin.After(r.End) {
		value := opts.Begin
		if r.FromCheckpoint {
			value = r.Begin.Format(time.RFC3339)
		}
		return Range{}, &Error{
			Flag:   "--begin",
			Value:  value,
			Reason: "cannot be after --end date",
			Err:    ErrBeginAfterEnd,
		}
	}

	return r, nil
}

func invalidFormat(flag, value string) *Error {
	return &Error{
		Flag:   flag,
		Value:  value,
		Reason: "not a valid date; " + formatHint,
		Err:    ErrInvalidDateFormat,
	}
}
