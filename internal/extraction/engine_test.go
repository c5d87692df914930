package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code42/code42cli/internal/cursor"
	"github.com/code42/code42cli/internal/query"
	"github.com/code42/code42cli/internal/sdk"
	"github.com/code42/code42cli/internal/storage"
)

// pagedSource serves pre-built pages and can fail on a given page.
type pagedSource struct {
	pages  [][]json.RawMessage
	failOn int
	err    error
	bodies []map[string]any
}

func (s *pagedSource) SearchFileEvents(_ context.Context, body []byte) (*sdk.FileEventResponse, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	s.bodies = append(s.bodies, m)
	n := int(m["pgNum"].(float64))
	if s.failOn == n {
		return nil, s.err
	}
	if n > len(s.pages) {
		return &sdk.FileEventResponse{}, nil
	}
	return &sdk.FileEventResponse{FileEvents: s.pages[n-1]}, nil
}

type recordingSink struct {
	events []Event
	err    error
}

func (s *recordingSink) Write(e Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func event(id string, inserted time.Time) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"eventId":%q,"insertionTimestamp":%q}`, id, inserted.Format("2006-01-02T15:04:05.000Z")))
}

func openCheckpoints(t *testing.T) *cursor.Store {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return cursor.New(db, "default")
}

var base = time.Date(2020, 1, 20, 6, 0, 0, 0, time.UTC)

func smallQuery() *query.Query {
	q := query.New()
	q.PgSize = 2
	return q
}

func TestExtractStreamsAllPages(t *testing.T) {
	src := &pagedSource{pages: [][]json.RawMessage{
		{event("1", base), event("2", base.Add(time.Minute))},
		{event("3", base.Add(2 * time.Minute))},
	}}
	sink := &recordingSink{}

	e := New(Options{Source: src, Sink: sink})
	assert.Equal(t, Idle, e.State())

	res, err := e.Extract(context.Background(), smallQuery())
	require.NoError(t, err)

	assert.Equal(t, Completed, res.State)
	assert.Equal(t, Completed, e.State())
	assert.Equal(t, 3, res.Events)
	assert.Equal(t, 2, res.Pages)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, sink.events, 3)
	assert.Equal(t, "3", sink.events[2].Fields["eventId"])
	assert.Equal(t, float64(1), src.bodies[0]["pgNum"])
	assert.Equal(t, float64(2), src.bodies[1]["pgNum"])
}

func TestExtractFullLastPageRequestsOneMore(t *testing.T) {
	src := &pagedSource{pages: [][]json.RawMessage{
		{event("1", base), event("2", base)},
	}}
	res, err := New(Options{Source: src, Sink: &recordingSink{}}).Extract(context.Background(), smallQuery())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, res.Events)
}

func TestExtractZeroResultsIsCompleted(t *testing.T) {
	checkpoints := openCheckpoints(t)
	res, err := New(Options{
		Source:         &pagedSource{},
		Sink:           &recordingSink{},
		Checkpoints:    checkpoints,
		CheckpointName: "test",
	}).Extract(context.Background(), smallQuery())
	require.NoError(t, err)

	assert.Equal(t, Completed, res.State)
	assert.Zero(t, res.Events)
	assert.False(t, res.CheckpointUpdated)

	_, ok, err := checkpoints.Get(context.Background(), "test")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompletedRunStoresMaximumTimestamp(t *testing.T) {
	checkpoints := openCheckpoints(t)
	latest := base.Add(90 * time.Minute).Add(123 * time.Millisecond)
	src := &pagedSource{pages: [][]json.RawMessage{
		{event("1", base.Add(time.Hour)), event("2", latest)},
		{event("3", base)},
	}}

	res, err := New(Options{
		Source:         src,
		Sink:           &recordingSink{},
		Checkpoints:    checkpoints,
		CheckpointName: "test",
	}).Extract(context.Background(), smallQuery())
	require.NoError(t, err)

	assert.True(t, res.CheckpointUpdated)
	assert.Equal(t, latest, res.MaxTimestamp)

	ts, ok, err := checkpoints.Get(context.Background(), "test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cursor.ToEpoch(latest), ts)
}

func TestFailedRunLeavesCheckpointUnchanged(t *testing.T) {
	checkpoints := openCheckpoints(t)
	ctx := context.Background()
	require.NoError(t, checkpoints.Replace(ctx, "test", 1579500000.0))

	boom := errors.New("transport failure")
	src := &pagedSource{
		pages: [][]json.RawMessage{
			{event("1", base.Add(time.Hour)), event("2", base.Add(2 * time.Hour))},
		},
		failOn: 2,
		err:    boom,
	}
	sink := &recordingSink{}

	res, err := New(Options{
		Source:         src,
		Sink:           sink,
		Checkpoints:    checkpoints,
		CheckpointName: "test",
	}).Extract(ctx, smallQuery())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, 2, res.Events, "events before the failure were still delivered")
	assert.False(t, res.CheckpointUpdated)

	ts, ok, err := checkpoints.Get(ctx, "test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1579500000.0, ts)
}

func TestSinkFailureFailsRun(t *testing.T) {
	src := &pagedSource{pages: [][]json.RawMessage{{event("1", base)}}}
	res, err := New(Options{Source: src, Sink: &recordingSink{err: errors.New("connection reset")}}).
		Extract(context.Background(), smallQuery())

	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, Failed, res.State)
}

func TestCheckpointWriteFailureFailsRun(t *testing.T) {
	src := &pagedSource{pages: [][]json.RawMessage{{event("1", base)}}}
	res, err := New(Options{
		Source:         src,
		Sink:           &recordingSink{},
		Checkpoints:    failingCheckpoints{},
		CheckpointName: "test",
	}).Extract(context.Background(), smallQuery())

	assert.ErrorIs(t, err, cursor.ErrStorageUnavailable)
	assert.Equal(t, Failed, res.State)
}

type failingCheckpoints struct{}

func (failingCheckpoints) Replace(context.Context, string, float64) error {
	return fmt.Errorf("%w: disk full", cursor.ErrStorageUnavailable)
}

func TestCancelledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(Options{Source: &pagedSource{}, Sink: &recordingSink{}}).Extract(ctx, smallQuery())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, res.State)
}

func TestEngineRunsOnce(t *testing.T) {
	e := New(Options{Source: &pagedSource{}, Sink: &recordingSink{}})
	_, err := e.Extract(context.Background(), smallQuery())
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), smallQuery())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestExtractAdvancedPagesRawQuery(t *testing.T) {
	raw, err := query.ParseRaw(`{"groupClause":"AND","groups":[],"pgSize":1,"srtKey":"eventId"}`)
	require.NoError(t, err)
	src := &pagedSource{pages: [][]json.RawMessage{{event("1", base)}, {event("2", base)}}}

	res, err := New(Options{Source: src, Sink: &recordingSink{}}).ExtractAdvanced(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Events)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, "eventId", src.bodies[0]["srtKey"])
}

func TestEventWithoutInsertionTimestamp(t *testing.T) {
	e := Event{Fields: map[string]any{"eventId": "x"}}
	_, ok := e.InsertionTime()
	assert.False(t, ok)
}
