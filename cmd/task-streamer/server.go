package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattcl/task-streamer/internal/adapter/httpserver"
	"github.com/mattcl/task-streamer/internal/adapter/memory"
	"github.com/mattcl/task-streamer/internal/adapter/metrics"
	"github.com/mattcl/task-streamer/internal/adapter/redis"
	"github.com/mattcl/task-streamer/internal/app"
	"github.com/mattcl/task-streamer/internal/broadcast"
	"github.com/mattcl/task-streamer/internal/domain"
	"github.com/mattcl/task-streamer/internal/platform/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServerCommand(root *rootOptions) *cobra.Command {
	var (
		port string
		bind []string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the task server and viewer websocket endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("bind") {
				cfg.Server.Bind = bind
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", config.DefaultPort, "port to listen on")
	cmd.Flags().StringArrayVarP(&bind, "bind", "b", []string{config.DefaultBind}, "address to bind to, may be repeated")
	return cmd
}

type storeSetup struct {
	store        domain.StateStore
	healthChecks []httpserver.HealthCheck
	close        func()
}

func setupStore(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (storeSetup, error) {
	if cfg.Server.RedisURL == "" {
		slog.Info("Using in-memory state store")
		return storeSetup{store: memory.NewStateStore(), close: func() {}}, nil
	}

	storeMetrics := metrics.NewStoreMetrics(reg)
	client, err := redis.NewClient(ctx, cfg.Server.RedisURL, redis.NewCircuitBreakerHook(storeMetrics))
	if err != nil {
		return storeSetup{}, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	store := redis.NewStateStore(client, storeMetrics)
	slog.Info("Using Redis state store")

	return storeSetup{
		store:        store,
		healthChecks: []httpserver.HealthCheck{{Name: "redis", Check: store.Ping}},
		close:        func() { _ = client.Close() },
	}, nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Server.Port, "bind", cfg.Server.Bind)

	promRegistry := metrics.NewRegistry()
	broadcastMetrics := metrics.NewBroadcastMetrics(promRegistry)

	setup, err := setupStore(ctx, cfg, promRegistry)
	if err != nil {
		return err
	}
	defer setup.close()

	registry := broadcast.NewRegistry(broadcastMetrics)
	defer registry.Stop()

	appSvc := app.NewService(setup.store, registry)
	srv := httpserver.NewServer(cfg.Server, appSvc, registry, promRegistry, broadcastMetrics, setup.healthChecks)

	if err := srv.Listen(); err != nil {
		return err
	}
	for _, addr := range srv.Addrs() {
		slog.Info("Server listening", "addr", addr.String())
	}

	done := runGracefulShutdown(srv)

	if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	return nil
}

func runGracefulShutdown(srv *httpserver.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		signal.Stop(sigChan)
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		close(done)
	}()

	return done
}
