package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for range 100 {
		id := NewID()
		assert.Len(t, id, 12)
		ids[id] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestID_Missing(t *testing.T) {
	id, ok := ID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestID_EmptyString(t *testing.T) {
	_, ok := ID(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func TestHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(WithID(context.Background(), "feedbeef0001"), "pushed tasks", "count", 3)

	assert.Contains(t, buf.String(), "correlation_id=feedbeef0001")
	assert.Contains(t, buf.String(), "count=3")
}

func TestHandler_NoCorrelationIDWhenMissing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	logger.With("component", "registry").InfoContext(context.Background(), "started")

	assert.NotContains(t, buf.String(), "correlation_id")
	assert.Contains(t, buf.String(), "component=registry")
}

func runMiddleware(t *testing.T, header string) (string, string) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	if header != "" {
		req.Header.Set(HeaderName, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	err := Middleware()(func(c echo.Context) error {
		seen, _ = ID(c.Request().Context())
		return nil
	})(c)
	require.NoError(t, err)
	return seen, rec.Header().Get(HeaderName)
}

func TestMiddleware_GeneratesID(t *testing.T) {
	seen, echoed := runMiddleware(t, "")
	assert.Len(t, seen, 12)
	assert.Equal(t, seen, echoed)
}

func TestMiddleware_ReusesValidHeader(t *testing.T) {
	seen, echoed := runMiddleware(t, "push-42")
	assert.Equal(t, "push-42", seen)
	assert.Equal(t, "push-42", echoed)
}

func TestMiddleware_RejectsMalformedHeader(t *testing.T) {
	seen, _ := runMiddleware(t, "bad id\nwith newline")
	assert.NotEqual(t, "bad id\nwith newline", seen)
	assert.Len(t, seen, 12)
}
