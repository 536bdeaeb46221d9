package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattcl/task-streamer/internal/adapter/apiclient"
	"github.com/mattcl/task-streamer/internal/adapter/taskwarrior"
	"github.com/mattcl/task-streamer/internal/domain"
	"github.com/mattcl/task-streamer/internal/platform/config"
	"github.com/spf13/cobra"
)

// clientFlags are shared by the subcommands that talk to a server.
type clientFlags struct {
	server string
	key    string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.server, "server", "s", "", "server base url")
	cmd.Flags().StringVarP(&f.key, "key", "k", "", "api key")
}

func (f *clientFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("server") {
		cfg.Client.Server = f.server
	}
	if cmd.Flags().Changed("key") {
		cfg.Client.APIKey = f.key
	}
	return cfg.ValidateClient()
}

type taskExporter interface {
	Export(ctx context.Context, filter string) ([]domain.Task, error)
}

type taskPusher interface {
	PushTasks(ctx context.Context, tasks []domain.Task) error
}

func newPushCommand(root *rootOptions) *cobra.Command {
	var (
		flags  clientFlags
		filter string
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Export tasks from Taskwarrior and push them to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("filter") {
				cfg.Client.Filter = filter
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}

			client, err := apiclient.NewClient(cfg.Client.Server, cfg.Client.APIKey)
			if err != nil {
				return err
			}
			return pushTasks(cmd.Context(), taskwarrior.NewExporter(), client, cfg.Client.Filter)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&filter, "filter", "f", config.DefaultFilter, "taskwarrior filter")
	return cmd
}

func pushTasks(ctx context.Context, exporter taskExporter, pusher taskPusher, filter string) error {
	tasks, err := exporter.Export(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to export tasks: %w", err)
	}
	if err := pusher.PushTasks(ctx, tasks); err != nil {
		return fmt.Errorf("failed to push tasks: %w", err)
	}
	slog.Info("Pushed tasks", "count", len(tasks), "filter", filter)
	return nil
}
