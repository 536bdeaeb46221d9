// Package taskwarrior exports tasks from the local Taskwarrior install by
// shelling out to the task binary.
package taskwarrior

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/mattcl/task-streamer/internal/domain"
)

const defaultBinary = "task"

// CommandRunner runs name with args and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Exporter runs `task export` with a filter, narrowed by whatever context
// is active in Taskwarrior.
type Exporter struct {
	binary string
	run    CommandRunner
}

func NewExporter() *Exporter {
	return &Exporter{binary: defaultBinary, run: execRunner}
}

// NewExporterWithRunner is used by tests and by callers that need a
// different task binary.
func NewExporterWithRunner(binary string, run CommandRunner) *Exporter {
	if binary == "" {
		binary = defaultBinary
	}
	return &Exporter{binary: binary, run: run}
}

// Export returns the tasks matching filter and the active context filter.
func (e *Exporter) Export(ctx context.Context, filter string) ([]domain.Task, error) {
	contextFilter, err := e.ActiveContextFilter(ctx)
	if err != nil {
		return nil, err
	}

	combined := strings.TrimSpace(filter + " " + contextFilter)
	terms, err := shlex.Split(combined)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", combined, err)
	}

	args := append([]string{"rc.json.array=on", "rc.confirmation=off", "export"}, terms...)
	slog.Debug("Exporting tasks", "binary", e.binary, "filter", combined)

	out, err := e.run(ctx, e.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("task export: %w", err)
	}

	tasks := []domain.Task{}
	if len(bytes.TrimSpace(out)) == 0 {
		return tasks, nil
	}
	if err := json.Unmarshal(out, &tasks); err != nil {
		return nil, fmt.Errorf("could not load tasks from output: %w", err)
	}
	return tasks, nil
}

// ActiveContextFilter returns the filter of the active Taskwarrior context,
// or "" when no context is set.
func (e *Exporter) ActiveContextFilter(ctx context.Context) (string, error) {
	out, err := e.run(ctx, e.binary, "_get", "rc.context")
	if err != nil {
		return "", fmt.Errorf("read active context: %w", err)
	}
	name := strings.TrimSpace(string(out))
	if name == "" {
		return "", nil
	}

	// Taskwarrior 2.6 splits context filters into .read and .write; older
	// versions store the filter under the context name itself.
	for _, key := range []string{"rc.context." + name + ".read", "rc.context." + name} {
		out, err := e.run(ctx, e.binary, "_get", key)
		if err != nil {
			return "", fmt.Errorf("read context %s: %w", name, err)
		}
		if filter := strings.TrimSpace(string(out)); filter != "" {
			return filter, nil
		}
	}

	slog.Warn("Active context has no filter", "context", name)
	return "", nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}
