package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/mattcl/task-streamer/internal/adapter/metrics"
	"github.com/mattcl/task-streamer/internal/broadcast"
	"github.com/mattcl/task-streamer/internal/domain"
	"github.com/mattcl/task-streamer/internal/platform/config"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// viewerRegistry is the broadcast registry as the server uses it: sessions
// register through it and readiness reports on it.
type viewerRegistry interface {
	broadcast.Registrar
	Count() int
	Stopped() bool
}

type appService interface {
	Tasks(ctx context.Context) ([]domain.Task, error)
	Topic(ctx context.Context) (domain.Topic, error)
	ReplaceTasks(ctx context.Context, tasks []domain.Task) error
	ReplaceTopic(ctx context.Context, topic domain.Topic) error
}

type Server struct {
	echo   *echo.Echo
	config config.ServerConfig

	app      appService
	registry viewerRegistry
	clock    clockwork.Clock

	promRegistry     *prometheus.Registry
	httpMetrics      *metrics.HTTPMetrics
	broadcastMetrics *metrics.BroadcastMetrics
	connMetrics      *metrics.ConnectionMetrics
	limits           *ConnectionLimits

	healthChecks []HealthCheck
	startTime    time.Time

	// sessionCtx is cancelled on Shutdown so hijacked viewer connections,
	// which http.Server.Shutdown does not track, close with 1001.
	sessionCtx    context.Context
	cancelSession context.CancelFunc
	sessions      sync.WaitGroup

	mu        sync.Mutex
	closing   bool
	listeners []net.Listener
	servers   []*http.Server
}

func NewServer(cfg config.ServerConfig, app appService, registry viewerRegistry, promRegistry *prometheus.Registry, broadcastMetrics *metrics.BroadcastMetrics, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	sessionCtx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		echo:             e,
		config:           cfg,
		app:              app,
		registry:         registry,
		clock:            clockwork.NewRealClock(),
		promRegistry:     promRegistry,
		httpMetrics:      metrics.NewHTTPMetrics(promRegistry),
		broadcastMetrics: broadcastMetrics,
		connMetrics:      metrics.NewConnectionMetrics(promRegistry),
		limits:           NewConnectionLimits(int64(cfg.MaxViewerConnections), cfg.MaxViewerConnectionsPerIP, viewerConnectRate, viewerConnectBurst),
		healthChecks:     healthChecks,
		startTime:        time.Now(),
		sessionCtx:       sessionCtx,
		cancelSession:    cancel,
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the routed echo instance, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Listen opens one listener per bind address. Either all addresses are
// bound or none are.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, addr := range s.config.Addresses() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, opened := range s.listeners {
				_ = opened.Close()
			}
			s.listeners = nil
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		s.listeners = append(s.listeners, ln)
	}
	return nil
}

// Addrs returns the bound addresses after Listen.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, ln := range s.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

// Serve serves every listener opened by Listen and blocks until all of them
// have stopped. It returns the first error other than http.ErrServerClosed.
func (s *Server) Serve() error {
	s.mu.Lock()
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return errors.New("serve called before listen")
	}
	servers := make([]*http.Server, len(s.listeners))
	for i := range s.listeners {
		servers[i] = &http.Server{
			Handler:           s.echo,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		}
	}
	s.servers = servers
	listeners := s.listeners
	s.mu.Unlock()

	errCh := make(chan error, len(servers))
	for i, hs := range servers {
		ln := listeners[i]
		slog.Info("Starting server", "addr", ln.Addr().String())
		go func() {
			errCh <- hs.Serve(ln)
		}()
	}

	var first error
	for range servers {
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) && first == nil {
			first = fmt.Errorf("failed to serve: %w", err)
			// one address failing takes the rest down with it
			go func() { _ = s.Shutdown(context.Background()) }()
		}
	}
	return first
}

// Start binds every configured address and serves until Shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown closes viewer sessions with a going-away frame, then drains the
// HTTP servers. It waits for sessions to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.cancelSession()
	servers := s.servers
	listeners := s.listeners
	s.mu.Unlock()

	var errs []error
	if len(servers) == 0 {
		for _, ln := range listeners {
			_ = ln.Close()
		}
	}
	for _, hs := range servers {
		if err := hs.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("viewer sessions still open: %w", ctx.Err()))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
