package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattcl/task-streamer/internal/domain"
	"github.com/mattcl/task-streamer/internal/platform/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "task-streamer.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearClientEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"TS_SERVER", "TS_API_KEY", "TS_SERVER_API_KEY", "REDIS_URL"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Get().Version)
	assert.Contains(t, out, "task-streamer")
}

func TestConfigFlag_MissingFileFallsBackToFlags(t *testing.T) {
	clearClientEnv(t)

	_, err := runCommand(t, "--config", filepath.Join(t.TempDir(), "nope.toml"), "push")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server must be specified")
}

func TestServerCommand_RequiresAPIKey(t *testing.T) {
	clearClientEnv(t)
	path := writeConfig(t, "[server]\nport = \"9000\"\n")

	_, err := runCommand(t, "-c", path, "server")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")
}

func TestPushCommand_RequiresServer(t *testing.T) {
	clearClientEnv(t)
	path := writeConfig(t, "[client]\napi_key = \"secret\"\n")

	_, err := runCommand(t, "-c", path, "push")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server must be specified")
}

func TestTopicCommand_RequiresAPIKey(t *testing.T) {
	clearClientEnv(t)
	path := writeConfig(t, "")

	_, err := runCommand(t, "-c", path, "topic", "--server", "http://localhost:8128", "Refactoring")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key must be specified")
}

func TestTopicCommand_RequiresTitle(t *testing.T) {
	_, err := runCommand(t, "topic")
	assert.Error(t, err)
}

type fakeExporter struct {
	tasks  []domain.Task
	err    error
	filter string
}

func (f *fakeExporter) Export(_ context.Context, filter string) ([]domain.Task, error) {
	f.filter = filter
	return f.tasks, f.err
}

type fakePusher struct {
	pushed []domain.Task
	calls  int
	err    error
}

func (f *fakePusher) PushTasks(_ context.Context, tasks []domain.Task) error {
	f.calls++
	f.pushed = tasks
	return f.err
}

func TestPushTasks(t *testing.T) {
	tasks := []domain.Task{{UUID: "d3c2052f-31b5-4544-94bc-af3ef1b10c4b", Description: "stream", Status: "pending"}}
	exporter := &fakeExporter{tasks: tasks}
	pusher := &fakePusher{}

	err := pushTasks(context.Background(), exporter, pusher, "status:pending +@stream")

	require.NoError(t, err)
	assert.Equal(t, "status:pending +@stream", exporter.filter)
	assert.Equal(t, tasks, pusher.pushed)
}

func TestPushTasks_ExportFailureSkipsPush(t *testing.T) {
	pusher := &fakePusher{}

	err := pushTasks(context.Background(), &fakeExporter{err: errors.New("task: command not found")}, pusher, "status:pending")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to export tasks")
	assert.Zero(t, pusher.calls)
}

func TestPushTasks_PushFailure(t *testing.T) {
	err := pushTasks(context.Background(), &fakeExporter{}, &fakePusher{err: errors.New("401")}, "status:pending")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to push tasks")
}
