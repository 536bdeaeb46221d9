package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/mattcl/task-streamer/internal/broadcast"
	apperrors "github.com/mattcl/task-streamer/internal/platform/errors"
)

// OBS browser sources and local overlay files send arbitrary origins, and
// viewers are read-only, so every origin is accepted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) registerViewerRoutes() {
	s.echo.GET("/ws/", s.handleViewer)
}

// handleViewer upgrades the request and serves the viewer session until it
// closes. It blocks for the lifetime of the connection.
func (s *Server) handleViewer(c echo.Context) error {
	ip := c.RealIP()
	ok, reason := s.limits.Acquire(ip)
	if !ok {
		s.connMetrics.Rejected.WithLabelValues(string(reason)).Inc()
		slog.WarnContext(c.Request().Context(), "Viewer connection rejected", "remote_ip", ip, "reason", string(reason))
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many viewer connections", "reason": string(reason)})
	}
	defer s.limits.Release(ip)

	if !s.trackSession() {
		return apperrors.ExternalError("server is shutting down", nil)
	}
	defer s.sessions.Done()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		slog.DebugContext(c.Request().Context(), "Websocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	s.connMetrics.ActiveConnections.Inc()
	defer s.connMetrics.ActiveConnections.Dec()

	session := broadcast.NewSession(conn, s.registry, s.clock, s.broadcastMetrics)
	if err := session.Run(s.sessionCtx); err != nil {
		slog.WarnContext(c.Request().Context(), "Viewer session failed", "remote_ip", ip, "error", err)
	}
	return nil
}

// trackSession adds a session to the shutdown wait group unless the server
// is already shutting down.
func (s *Server) trackSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions.Add(1)
	return true
}
