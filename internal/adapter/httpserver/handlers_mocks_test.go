package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/mattcl/task-streamer/internal/adapter/metrics"
	"github.com/mattcl/task-streamer/internal/broadcast"
	"github.com/mattcl/task-streamer/internal/domain"
	"github.com/mattcl/task-streamer/internal/platform/config"
	"github.com/prometheus/client_golang/prometheus"
)

const testAPIKey = "test-api-key"

// --- Mock implementations ---

type mockAppService struct {
	tasksFn        func(ctx context.Context) ([]domain.Task, error)
	topicFn        func(ctx context.Context) (domain.Topic, error)
	replaceTasksFn func(ctx context.Context, tasks []domain.Task) error
	replaceTopicFn func(ctx context.Context, topic domain.Topic) error
}

func (m *mockAppService) Tasks(ctx context.Context) ([]domain.Task, error) {
	if m.tasksFn != nil {
		return m.tasksFn(ctx)
	}
	return []domain.Task{}, nil
}

func (m *mockAppService) Topic(ctx context.Context) (domain.Topic, error) {
	if m.topicFn != nil {
		return m.topicFn(ctx)
	}
	return domain.Topic{}, nil
}

func (m *mockAppService) ReplaceTasks(ctx context.Context, tasks []domain.Task) error {
	if m.replaceTasksFn != nil {
		return m.replaceTasksFn(ctx, tasks)
	}
	return errors.New("not implemented")
}

func (m *mockAppService) ReplaceTopic(ctx context.Context, topic domain.Topic) error {
	if m.replaceTopicFn != nil {
		return m.replaceTopicFn(ctx, topic)
	}
	return errors.New("not implemented")
}

// --- Test helpers ---

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Port:                      "0",
		Bind:                      []string{"127.0.0.1"},
		APIKey:                    testAPIKey,
		MaxViewerConnections:      10,
		MaxViewerConnectionsPerIP: 5,
	}
}

type testServerOptions struct {
	cfg          config.ServerConfig
	registry     viewerRegistry
	healthChecks []HealthCheck
}

func withConfig(cfg config.ServerConfig) func(*testServerOptions) {
	return func(o *testServerOptions) { o.cfg = cfg }
}

func withRegistry(r viewerRegistry) func(*testServerOptions) {
	return func(o *testServerOptions) { o.registry = r }
}

func withHealthChecks(checks ...HealthCheck) func(*testServerOptions) {
	return func(o *testServerOptions) { o.healthChecks = checks }
}

func newTestServer(t *testing.T, app appService, opts ...func(*testServerOptions)) *Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	bm := metrics.NewBroadcastMetrics(reg)

	o := &testServerOptions{cfg: testServerConfig()}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		registry := broadcast.NewRegistry(bm)
		t.Cleanup(registry.Stop)
		o.registry = registry
	}

	return NewServer(o.cfg, app, o.registry, reg, bm, o.healthChecks)
}

// do runs one request through the full middleware stack.
func do(srv *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func bearer(key string) map[string]string {
	return map[string]string{echo.HeaderAuthorization: "Bearer " + key}
}
