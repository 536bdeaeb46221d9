package httpserver

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/mattcl/task-streamer/internal/platform/errors"
)

// requireAPIKey guards mutation routes with "Authorization: Bearer <key>".
func (s *Server) requireAPIKey() echo.MiddlewareFunc {
	expected := []byte(s.config.APIKey)

	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			if len(expected) == 0 {
				return false, nil
			}
			return subtle.ConstantTimeCompare([]byte(key), expected) == 1, nil
		},
		ErrorHandler: func(err error, _ echo.Context) error {
			return apperrors.UnauthorizedError("missing or invalid api key")
		},
	})
}
