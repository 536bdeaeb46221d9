package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mattcl/task-streamer/internal/adapter/metrics"
	"github.com/mattcl/task-streamer/internal/platform/correlation"
)

const mutationBodyLimit = "4M"

func (s *Server) registerRoutes() {
	s.echo.HTTPErrorHandler = httpErrorHandler

	s.echo.Use(correlation.Middleware())
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.httpMetrics.Middleware())
	s.echo.Use(ErrorHandlingMiddleware())
	// overlays are usually served from a different origin than the API
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, correlation.HeaderName},
	}))

	s.registerHealthRoutes()
	s.registerAPIRoutes()
	s.registerViewerRoutes()

	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.promRegistry)))
}

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api/v1")

	api.GET("/tasks", s.handleGetTasks)
	api.GET("/topic", s.handleGetTopic)

	mutate := []echo.MiddlewareFunc{
		newMutationRateLimiter(defaultMutationLimit, s.httpMetrics.RateLimited),
		s.requireAPIKey(),
		middleware.BodyLimit(mutationBodyLimit),
	}
	api.POST("/tasks", s.handleReplaceTasks, mutate...)
	api.POST("/topic", s.handleReplaceTopic, mutate...)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"user_agent", v.UserAgent,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
