package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/me/goshift/internal/config"
	"github.com/me/goshift/internal/dispatcher"
	"github.com/me/goshift/internal/server"
	"github.com/me/goshift/internal/store"
	"github.com/me/goshift/pkg/model"
)

// cannedRoster is a fixed roster.Client for driving the dispatcher in tests.
type cannedRoster struct {
	ids []string
}

func (c cannedRoster) Resolve(ctx context.Context, groupID string) ([]string, error) {
	return c.ids, nil
}

func (c cannedRoster) Healthy(ctx context.Context) error { return nil }

// startTestServer starts a server with an in-memory SQLite store and returns
// its URL plus the store for seeding and dispatching.
func startTestServer(t *testing.T) (string, store.Store) {
	t.Helper()
	srvLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := store.NewSQLiteStore(":memory:", srvLogger)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv := server.New(config.DefaultServerConfig(), st, nil, srvLogger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL, st
}

// nextMonday returns the first Monday strictly after today, as YYYY-MM-DD.
func nextMonday() string {
	d := time.Now().UTC().AddDate(0, 0, 1)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format(model.DateOnly)
}

// submitTestJob creates a schedule job via HTTP and returns its ID.
func submitTestJob(t *testing.T, serverURL string) string {
	t.Helper()

	srvLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	c := NewClient(serverURL, srvLogger)

	resp, err := c.Post("/api/schedules", map[string]any{
		"group_id":     "grp_alpha",
		"period_start": nextMonday(),
	})
	if err != nil {
		t.Fatalf("create schedule job: %v", err)
	}
	var data map[string]any
	json.Unmarshal(resp.Data, &data)
	return data["id"].(string)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

func TestSubmitCommand(t *testing.T) {
	url, _ := startTestServer(t)

	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	_, err := runCLI(t,
		"--server", url,
		"submit", "--group", "grp_alpha", "--period-start", nextMonday(),
	)

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	if err != nil {
		t.Fatalf("submit error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "Schedule job created: job_") {
		t.Errorf("expected 'Schedule job created: job_' in output, got: %s", output)
	}
	if !strings.Contains(output, "(state: PENDING)") {
		t.Errorf("expected PENDING state in output, got: %s", output)
	}
}

func TestSubmitCommand_NotMonday(t *testing.T) {
	url, _ := startTestServer(t)
	_, err := runCLI(t,
		"--server", url,
		"submit", "--group", "grp_alpha", "--period-start", "2026-09-09",
	)
	if err == nil {
		t.Fatal("expected validation error for a non-Monday period start")
	}
	if !strings.Contains(err.Error(), "VALIDATION_ERROR") {
		t.Errorf("error = %v, want VALIDATION_ERROR", err)
	}
}

func TestSubmitCommand_MissingFlags(t *testing.T) {
	url, _ := startTestServer(t)
	_, err := runCLI(t, "--server", url, "submit")
	if err == nil {
		t.Fatal("expected error for missing required flags")
	}
}

func TestStatusCommand(t *testing.T) {
	url, _ := startTestServer(t)
	jobID := submitTestJob(t, url)

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	_, err := runCLI(t, "--server", url, "status", jobID)

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	if !strings.Contains(output, jobID) {
		t.Errorf("expected job ID in output, got: %s", output)
	}
	if !strings.Contains(output, "PENDING") {
		t.Errorf("expected PENDING state in output, got: %s", output)
	}
	if !strings.Contains(output, "grp_alpha") {
		t.Errorf("expected group in output, got: %s", output)
	}
}

func TestResultCommand_NotReady(t *testing.T) {
	url, _ := startTestServer(t)
	jobID := submitTestJob(t, url)

	_, err := runCLI(t, "--server", url, "result", jobID)
	if err == nil {
		t.Fatal("expected error for a job that has not completed")
	}
	if !strings.Contains(err.Error(), "not ready") {
		t.Errorf("error = %v, want not ready", err)
	}
}

func TestResultCommand(t *testing.T) {
	url, st := startTestServer(t)
	jobID := submitTestJob(t, url)

	// Process the job through one dispatcher tick.
	dispLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	loop := dispatcher.NewLoop(st, cannedRoster{ids: []string{"staff_ana", "staff_bo", "staff_cam"}},
		dispatcher.DefaultConfig(), dispLogger)
	processed, err := loop.Tick(context.Background())
	if err != nil || !processed {
		t.Fatalf("tick: processed=%v err=%v", processed, err)
	}

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	_, err = runCLI(t, "--server", url, "result", jobID)

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	if err != nil {
		t.Fatalf("result error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "staff_ana") {
		t.Errorf("expected staff_ana in output, got: %s", output)
	}
	if !strings.Contains(output, "84 assignments") {
		t.Errorf("expected '84 assignments' in output, got: %s", output)
	}
}

func TestListCommand(t *testing.T) {
	url, _ := startTestServer(t)
	submitTestJob(t, url)

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	_, err := runCLI(t, "--server", url, "list")

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if !strings.Contains(output, "ID") {
		t.Errorf("expected table header in output, got: %s", output)
	}
	if !strings.Contains(output, "PENDING") {
		t.Errorf("expected job state in output, got: %s", output)
	}
}

func TestHealthCommand(t *testing.T) {
	url, _ := startTestServer(t)

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	_, err := runCLI(t, "--server", url, "health")

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	if err != nil {
		t.Fatalf("health error: %v", err)
	}
	if !strings.Contains(output, "healthy") {
		t.Errorf("expected healthy in output, got: %s", output)
	}
}

func TestSubmitCommand_JSONOutput(t *testing.T) {
	url, _ := startTestServer(t)

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	_, err := runCLI(t,
		"--server", url, "--json",
		"submit", "--group", "grp_alpha", "--period-start", nextMonday(),
	)

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	if err != nil {
		t.Fatalf("submit --json error: %v\noutput: %s", err, output)
	}

	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, output)
	}
	if id, ok := data["id"].(string); !ok || !strings.HasPrefix(id, "job_") {
		t.Errorf("id = %v, want job_ prefix", data["id"])
	}
}
