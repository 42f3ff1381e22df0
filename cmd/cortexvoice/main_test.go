package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexvoice/internal/data"
	"github.com/normanking/cortexvoice/internal/intent"
	"github.com/normanking/cortexvoice/internal/scheduler"
)

// execute runs the CLI with args against an isolated data directory.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CORTEXVOICE_DATA_DIR", dir)
	t.Setenv("CORTEXVOICE_LOGGING_DIR", filepath.Join(dir, "logs"))
	t.Setenv("CORTEXVOICE_LOGGING_CONSOLE", "false")
	return dir
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "cortexvoice v"+version+"\n", out)
}

func TestParse(t *testing.T) {
	isolate(t)

	out, err := execute(t, "", "parse", "set", "a", "timer", "for", "5", "minutes")
	require.NoError(t, err)
	assert.Contains(t, out, "Intent:   set_timer (task)")
	assert.Contains(t, out, "duration")

	out, err = execute(t, "", "parse", "--json", "open chrome")
	require.NoError(t, err)
	var cmd intent.Command
	require.NoError(t, json.Unmarshal([]byte(out), &cmd))
	assert.Equal(t, intent.OpenApp, cmd.Intent)
	app, ok := cmd.Entities.Str(intent.EntityAppName)
	assert.True(t, ok)
	assert.Equal(t, "chrome", app)
}

func TestConfigInitAndShow(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")

	out, err := execute(t, "", "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	_, err = execute(t, "", "--config", path, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	out, err = execute(t, "", "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "wake_phrase: hey strom")
}

func TestRunThenInspect(t *testing.T) {
	isolate(t)

	script := strings.Join([]string{
		"hey strom set a timer for 5 minutes",
	}, "\n") + "\n"
	out, err := execute(t, script, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Strom: Timer set for 5 minutes.")

	out, err = execute(t, "", "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "timer")
	assert.Contains(t, out, "pending")

	out, err = execute(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "[set_timer] set a timer for 5 minutes")
	assert.Contains(t, out, "-> Timer set for 5 minutes.")

	out, err = execute(t, "", "tasks", "cancel", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled task 1.")

	out, err = execute(t, "", "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No scheduled tasks.")

	_, err = execute(t, "", "tasks", "cancel", "1")
	assert.ErrorContains(t, err, "no pending task 1")
}

func TestTasksCancelLeavesOverdueTimers(t *testing.T) {
	dir := isolate(t)
	ctx := context.Background()

	store, err := data.NewDB(dir)
	require.NoError(t, err)
	overdue := time.Now().Add(-time.Minute)
	for id := int64(1); id <= 2; id++ {
		require.NoError(t, store.SaveTask(ctx, scheduler.Task{
			ID: id, Kind: scheduler.KindTimer, DueAt: overdue, CreatedAt: overdue.Add(-time.Hour),
		}))
	}
	require.NoError(t, store.SetLastTaskID(ctx, 2))
	require.NoError(t, store.Close())

	out, err := execute(t, "", "tasks", "cancel", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled task 1.")

	// the other overdue timer is still waiting to be announced
	out, err = execute(t, "", "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "   2  timer")
	assert.Contains(t, out, "pending")
	assert.NotContains(t, out, "   1  timer")
}

type healthFunc func(context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func TestMetricsMux(t *testing.T) {
	var down atomic.Bool
	srv := httptest.NewServer(metricsMux(healthFunc(func(context.Context) error {
		if down.Load() {
			return errors.New("database is locked")
		}
		return nil
	})))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down.Store(true)
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
