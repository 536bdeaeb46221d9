package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mattcl/task-streamer/internal/platform/version"
)

const readinessProbeTimeout = 5 * time.Second

var (
	errRegistryStopped = errors.New("broadcast registry stopped")
	errShuttingDown    = errors.New("server shutting down")
)

// HealthCheck is a named dependency check run by /health/ready, e.g. a
// Redis ping.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type readinessResponse struct {
	Status         string `json:"status"`
	ViewerSessions int    `json:"viewer_sessions"`
	FailedCheck    string `json:"failed_check,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// handleReadiness reports ready only while viewers can be served: the
// broadcast registry is running, the server is not draining, and every
// dependency check passes.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	name, err := s.firstFailingCheck(ctx)
	if err != nil {
		return s.writeReadiness(c, http.StatusServiceUnavailable, readinessResponse{
			Status:      "unhealthy",
			FailedCheck: name,
			Error:       err.Error(),
		})
	}

	return s.writeReadiness(c, http.StatusOK, readinessResponse{
		Status:         "ready",
		ViewerSessions: s.registry.Count(),
	})
}

func (s *Server) firstFailingCheck(ctx context.Context) (string, error) {
	if s.registry.Stopped() {
		return "broadcast", errRegistryStopped
	}

	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return "server", errShuttingDown
	}

	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			return hc.Name, err
		}
	}
	return "", nil
}

func (s *Server) writeReadiness(c echo.Context, status int, body readinessResponse) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to write readiness response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
