package bulk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_ProcessesEveryRow(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	rows := []string{"a", "b", "c", "d"}

	report := Run(context.Background(), NewProcessor(2), rows, func(s string) string { return s },
		func(_ context.Context, s string) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, s)
			return nil
		})

	if report.Total != 4 || report.Succeeded != 4 || report.Failed() != 0 {
		t.Errorf("report = %+v, want 4 total, 4 succeeded", report)
	}
	if report.Err() != nil {
		t.Errorf("Err() = %v, want nil", report.Err())
	}
	if report.BatchID == "" {
		t.Error("BatchID is empty")
	}
	if len(seen) != 4 {
		t.Errorf("handler called %d times, want 4", len(seen))
	}
}

func TestRun_AggregatesRowErrors(t *testing.T) {
	rows := []string{"ok-1", "bad-2", "ok-3", "bad-4"}
	report := Run(context.Background(), NewProcessor(4), rows, func(s string) string { return s },
		func(_ context.Context, s string) error {
			if strings.HasPrefix(s, "bad") {
				return fmt.Errorf("User '%s' does not exist.", s)
			}
			return nil
		})

	if report.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", report.Succeeded)
	}
	if report.Failed() != 2 {
		t.Fatalf("Failed() = %d, want 2", report.Failed())
	}
	if report.Errors[0].Index != 2 || report.Errors[1].Index != 4 {
		t.Errorf("error indexes = %d, %d, want 2, 4", report.Errors[0].Index, report.Errors[1].Index)
	}
	msg := report.Err().Error()
	for _, want := range []string{"2 of 4 rows failed", "row 2 (bad-2)", "User 'bad-4' does not exist."} {
		if !strings.Contains(msg, want) {
			t.Errorf("Err() = %q, missing %q", msg, want)
		}
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	rows := make([]int, 20)

	Run(context.Background(), NewProcessor(3), rows, func(int) string { return "" },
		func(context.Context, int) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		})

	if got := peak.Load(); got > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", got)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	report := Run(ctx, NewProcessor(1), []string{"a", "b"}, func(s string) string { return s },
		func(context.Context, string) error {
			calls.Add(1)
			return nil
		})

	if calls.Load() != 0 {
		t.Errorf("handler called %d times, want 0", calls.Load())
	}
	if report.Failed() != 2 || !errors.Is(report.Errors[0], context.Canceled) {
		t.Errorf("report errors = %v, want 2 context.Canceled", report.Errors)
	}
}

func TestRun_Progress(t *testing.T) {
	p := NewProcessor(2)
	var last int
	p.OnProgress(func(done, total int) {
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
		last = done
	})

	Run(context.Background(), p, []int{1, 2, 3}, func(int) string { return "" },
		func(context.Context, int) error { return nil })

	if last != 3 {
		t.Errorf("last progress = %d, want 3", last)
	}
}

var deHeaders = []string{"username", "cloud_alias", "departure_date", "notes"}

func TestReadCSV_SkipsHeaderRow(t *testing.T) {
	in := "username,cloud_alias,departure_date,notes\n" +
		"test@example.com,alias@example.com,2020-02-02,note\n" +
		"other@example.com,,,\n"

	rows, err := ReadCSV(strings.NewReader(in), deHeaders)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["cloud_alias"] != "alias@example.com" || rows[0]["departure_date"] != "2020-02-02" {
		t.Errorf("rows[0] = %v", rows[0])
	}
	if rows[1]["username"] != "other@example.com" || rows[1]["notes"] != "" {
		t.Errorf("rows[1] = %v", rows[1])
	}
}

func TestReadCSV_WithoutHeaderRow(t *testing.T) {
	in := "test@example.com,alias@example.com\nother@example.com\n"

	rows, err := ReadCSV(strings.NewReader(in), deHeaders)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["username"] != "test@example.com" {
		t.Errorf("first row was treated as a header: %v", rows)
	}
	if v, ok := rows[1]["departure_date"]; !ok || v != "" {
		t.Errorf("missing column = %q (present %v), want empty", v, ok)
	}
}

func TestReadCSV_Empty(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader(""), deHeaders); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("err = %v, want ErrEmptyFile", err)
	}
}

func TestReadFlatFile_TrimsRows(t *testing.T) {
	rows, err := ReadFlatFile(strings.NewReader("  a@example.com \n\nb@example.com\r\n"), "username")
	if err != nil {
		t.Fatalf("ReadFlatFile: %v", err)
	}
	if len(rows) != 2 || rows[0] != "a@example.com" || rows[1] != "b@example.com" {
		t.Errorf("rows = %q", rows)
	}
}

func TestReadFlatFile_SkipsHeader(t *testing.T) {
	rows, err := ReadFlatFile(strings.NewReader("\nusername\na@example.com\nusername\n"), "username")
	if err != nil {
		t.Fatalf("ReadFlatFile: %v", err)
	}
	// Only a leading header is dropped.
	if len(rows) != 2 || rows[0] != "a@example.com" || rows[1] != "username" {
		t.Errorf("rows = %q", rows)
	}
	if _, err := ReadFlatFile(strings.NewReader("username\n"), "username"); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("err = %v, want ErrEmptyFile", err)
	}
}

func TestGenerateTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := GenerateTemplate(dir, "departing_employee_bulk_add", deHeaders)
	if err != nil {
		t.Fatalf("GenerateTemplate: %v", err)
	}
	if path != filepath.Join(dir, "departing_employee_bulk_add.csv") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "username,cloud_alias,departure_date,notes\n" {
		t.Errorf("template = %q", data)
	}

	rows, err := ReadCSVFile(path, deHeaders)
	if !errors.Is(err, ErrEmptyFile) && len(rows) != 0 {
		t.Errorf("template should read back as no rows, got %v (err %v)", rows, err)
	}
}
