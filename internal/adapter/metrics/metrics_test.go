package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBroadcastMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBroadcastMetrics(reg)

	m.Notifications.WithLabelValues("tasks-updated").Inc()
	m.SessionCloses.WithLabelValues("peer_close").Add(2)
	m.ActiveSessions.Set(3)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Notifications.WithLabelValues("tasks-updated")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.SessionCloses.WithLabelValues("peer_close")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.ActiveSessions), 0)

	// second registration on the same registry must panic
	assert.Panics(t, func() { NewBroadcastMetrics(reg) })
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/tasks", func(c echo.Context) error { return c.JSON(http.StatusOK, []string{}) })
	e.POST("/api/v1/tasks", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnauthorized, "nope")
	})
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader("[]")),
		httptest.NewRequest(http.MethodGet, "/health/live", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), r)
	}

	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/tasks", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodPost, "/api/v1/tasks", "401")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.RequestsTotal))
}

func TestHTTPMetrics_MiddlewarePropagatesError(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/topic", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/topic")

	httpErr := echo.NewHTTPError(http.StatusBadRequest, "bad json")
	err := m.Middleware()(func(echo.Context) error { return httpErr })(c)

	assert.ErrorIs(t, err, httpErr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodPost, "/api/v1/topic", "400")), 0)
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := NewRegistry()
	NewStoreMetrics(reg).Operations.WithLabelValues("get_tasks", "ok").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `task_streamer_store_operations_total{operation="get_tasks",result="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.Contains(t, rec.Body.String(), `task_streamer_build_info{commit="unknown"`)
}
