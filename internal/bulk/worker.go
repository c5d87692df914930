// Package bulk applies a per-row handler to the rows of a CSV or flat file on
// a bounded worker pool and aggregates the per-row failures.
package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrency when no worker count is configured.
const DefaultWorkers = 10

// RowError is the failure of a single row. Index is 1-based.
type RowError struct {
	Index int
	Row   string
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %v", e.Index, e.Row, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Report summarises a batch.
type Report struct {
	BatchID   string
	Total     int
	Succeeded int
	Errors    []RowError
}

// Failed returns the number of rows whose handler returned an error.
func (r *Report) Failed() int {
	return len(r.Errors)
}

// Err returns nil when every row succeeded, otherwise an error naming each
// failed row.
func (r *Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%d of %d rows failed:\n  %s", len(r.Errors), r.Total, strings.Join(msgs, "\n  "))
}

// Processor runs row handlers concurrently.
type Processor struct {
	workers    int
	logger     *slog.Logger
	onProgress func(done, total int)
}

// NewProcessor creates a Processor. If workers is <= 0, it defaults to
// DefaultWorkers.
func NewProcessor(workers int) *Processor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Processor{workers: workers, logger: slog.Default()}
}

// OnProgress registers a callback invoked after each row. Calls are
// serialised.
func (p *Processor) OnProgress(fn func(done, total int)) {
	p.onProgress = fn
}

// Run calls handle for every row. A failing row never stops the batch; rows
// not yet started when ctx is cancelled are recorded as failed with the
// context error. describe renders a row for error messages.
func Run[R any](ctx context.Context, p *Processor, rows []R, describe func(R) string, handle func(context.Context, R) error) *Report {
	report := &Report{BatchID: uuid.NewString(), Total: len(rows)}
	logger := p.logger.With("batch", report.BatchID)
	logger.Debug("bulk batch started", "rows", len(rows), "workers", p.workers)

	var (
		mu   sync.Mutex
		done int
	)
	g := new(errgroup.Group)
	g.SetLimit(p.workers)

	for i, row := range rows {
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				err = handle(ctx, row)
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				logger.Warn("bulk row failed", "row", i+1, "error", err)
				report.Errors = append(report.Errors, RowError{Index: i + 1, Row: describe(row), Err: err})
			} else {
				report.Succeeded++
			}
			if p.onProgress != nil {
				p.onProgress(done, len(rows))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Errors, func(a, b int) bool { return report.Errors[a].Index < report.Errors[b].Index })
	logger.Debug("bulk batch finished", "succeeded", report.Succeeded, "failed", report.Failed())
	return report
}
