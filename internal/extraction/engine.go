// Package extraction pages through file event search results, streams every
// event to an output sink and advances a checkpoint once a run completes.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/code42/code42cli/internal/cursor"
	"github.com/code42/code42cli/internal/query"
	"github.com/code42/code42cli/internal/sdk"
)

// State is the lifecycle stage of a run.
type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrAlreadyStarted is returned when an Engine is reused.
var ErrAlreadyStarted = errors.New("extraction already started")

// EventSource executes one page of a search.
type EventSource interface {
	SearchFileEvents(ctx context.Context, body []byte) (*sdk.FileEventResponse, error)
}

// Sink receives events as they arrive.
type Sink interface {
	Write(e Event) error
}

// Checkpointer persists the boundary of a completed run.
type Checkpointer interface {
	Replace(ctx context.Context, name string, ts float64) error
}

// Event is a single file event. Raw is the payload as received; Fields is
// the same payload decoded.
type Event struct {
	Raw    json.RawMessage
	Fields map[string]any
}

// InsertionTime returns the insertionTimestamp of the event.
func (e Event) InsertionTime() (time.Time, bool) {
	s, ok := e.Fields[query.TermInsertionTimestamp].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Result is what a run leaves behind.
type Result struct {
	RunID             string
	State             State
	Events            int
	Pages             int
	MaxTimestamp      time.Time
	CheckpointUpdated bool
	Err               error
}

// Options configure an Engine.
type Options struct {
	Source EventSource
	Sink   Sink

	// Checkpoints and CheckpointName enable checkpointing when both are set.
	Checkpoints    Checkpointer
	CheckpointName string

	Logger *slog.Logger
}

// Engine runs a single extraction. It is not safe for concurrent use and
// may only be started once.
type Engine struct {
	opts   Options
	logger *slog.Logger
	state  State
	runID  string
}

// New returns an idle Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Engine{
		opts:   opts,
		logger: logger.With("run", id),
		state:  Idle,
		runID:  id,
	}
}

// State returns the current lifecycle stage.
func (e *Engine) State() State {
	return e.state
}

// Extract runs a query built from filter flags.
func (e *Engine) Extract(ctx context.Context, q *query.Query) (*Result, error) {
	return e.run(ctx, q)
}

// ExtractAdvanced runs a pre-built query.
func (e *Engine) ExtractAdvanced(ctx context.Context, raw *query.Raw) (*Result, error) {
	return e.run(ctx, raw)
}

// Run executes any payload.
func (e *Engine) Run(ctx context.Context, p query.Payload) (*Result, error) {
	return e.run(ctx, p)
}

func (e *Engine) run(ctx context.Context, p query.Payload) (*Result, error) {
	if e.state != Idle {
		return nil, ErrAlreadyStarted
	}
	e.state = Running
	res := &Result{RunID: e.runID, State: Running}
	e.logger.Debug("extraction started", "checkpoint", e.opts.CheckpointName)

	if err := e.pages(ctx, p, res); err != nil {
		return e.fail(res, err)
	}

	if e.checkpointing() && res.Events > 0 && !res.MaxTimestamp.IsZero() {
		ts := cursor.ToEpoch(res.MaxTimestamp)
		if err := e.opts.Checkpoints.Replace(ctx, e.opts.CheckpointName, ts); err != nil {
			return e.fail(res, err)
		}
		res.CheckpointUpdated = true
		e.logger.Debug("checkpoint updated", "checkpoint", e.opts.CheckpointName, "timestamp", res.MaxTimestamp)
	}

	e.state = Completed
	res.State = Completed
	e.logger.Info("extraction completed", "events", res.Events, "pages", res.Pages)
	return res, nil
}

func (e *Engine) pages(ctx context.Context, p query.Payload, res *Result) error {
	size := p.PageSize()
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := p.Page(page)
		if err != nil {
			return fmt.Errorf("encoding page %d: %w", page, err)
		}
		resp, err := e.opts.Source.SearchFileEvents(ctx, body)
		if err != nil {
			return err
		}
		res.Pages++

		for _, raw := range resp.FileEvents {
			ev := Event{Raw: raw}
			if err := json.Unmarshal(raw, &ev.Fields); err != nil {
				return fmt.Errorf("decoding event on page %d: %w", page, err)
			}
			if err := e.opts.Sink.Write(ev); err != nil {
				return fmt.Errorf("writing event: %w", err)
			}
			res.Events++
			if t, ok := ev.InsertionTime(); ok && t.After(res.MaxTimestamp) {
				res.MaxTimestamp = t
			}
		}

		if len(resp.FileEvents) < size {
			return nil
		}
	}
}

func (e *Engine) fail(res *Result, err error) (*Result, error) {
	e.state = Failed
	res.State = Failed
	res.Err = err
	e.logger.Error("extraction failed", "events", res.Events, "error", err)
	return res, err
}

func (e *Engine) checkpointing() bool {
	return e.opts.Checkpoints != nil && e.opts.CheckpointName != ""
}
