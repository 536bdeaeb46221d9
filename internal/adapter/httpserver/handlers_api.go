package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mattcl/task-streamer/internal/domain"
	apperrors "github.com/mattcl/task-streamer/internal/platform/errors"
)

func (s *Server) handleGetTasks(c echo.Context) error {
	tasks, err := s.app.Tasks(c.Request().Context())
	if err != nil {
		return serviceError("failed to load tasks", err)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	if err := c.JSON(http.StatusOK, tasks); err != nil {
		return fmt.Errorf("failed to write tasks response: %w", err)
	}
	return nil
}

func (s *Server) handleReplaceTasks(c echo.Context) error {
	if c.Request().ContentLength == 0 {
		return apperrors.ValidationError("request body is required")
	}

	var tasks []domain.Task
	if err := c.Bind(&tasks); err != nil {
		return apperrors.ValidationError("request body must be a JSON array of tasks")
	}

	if err := s.app.ReplaceTasks(c.Request().Context(), tasks); err != nil {
		return serviceError("failed to replace tasks", err).WithField("tasks", len(tasks))
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleGetTopic(c echo.Context) error {
	topic, err := s.app.Topic(c.Request().Context())
	if err != nil {
		return serviceError("failed to load topic", err)
	}
	if err := c.JSON(http.StatusOK, topic); err != nil {
		return fmt.Errorf("failed to write topic response: %w", err)
	}
	return nil
}

func (s *Server) handleReplaceTopic(c echo.Context) error {
	if c.Request().ContentLength == 0 {
		return apperrors.ValidationError("request body is required")
	}

	var topic domain.Topic
	if err := c.Bind(&topic); err != nil {
		return apperrors.ValidationError("request body must be a JSON topic")
	}

	if err := s.app.ReplaceTopic(c.Request().Context(), topic); err != nil {
		return serviceError("failed to replace topic", err)
	}
	return c.NoContent(http.StatusOK)
}

// serviceError maps app.Service errors onto the structured error types.
func serviceError(message string, err error) *apperrors.Error {
	switch {
	case errors.Is(err, domain.ErrInvalidTask), errors.Is(err, domain.ErrInvalidTopic):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		return apperrors.ExternalError(message, err)
	default:
		return apperrors.InternalError(message, err)
	}
}
