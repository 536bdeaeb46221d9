package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattcl/task-streamer/internal/adapter/apiclient"
	"github.com/mattcl/task-streamer/internal/domain"
	"github.com/spf13/cobra"
)

func newTopicCommand(root *rootOptions) *cobra.Command {
	var (
		flags       clientFlags
		description string
	)

	cmd := &cobra.Command{
		Use:   "topic <title>...",
		Short: "Set the topic shown on the overlay",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}

			topic := domain.Topic{Title: strings.Join(args, " "), Description: description}
			if err := topic.Validate(); err != nil {
				return err
			}

			client, err := apiclient.NewClient(cfg.Client.Server, cfg.Client.APIKey)
			if err != nil {
				return err
			}
			if err := client.SetTopic(cmd.Context(), topic); err != nil {
				return fmt.Errorf("failed to set topic: %w", err)
			}
			slog.Info("Topic updated", "title", topic.Title)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&description, "description", "d", "", "longer description shown under the title")
	return cmd
}
