package main

import (
	"fmt"
	"log"
	"os"

	"github.com/mattcl/task-streamer/internal/platform/config"
	"github.com/mattcl/task-streamer/internal/platform/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "task-streamer",
		Short:         "Stream your Taskwarrior tasks to a browser overlay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "override config file path")

	cmd.AddCommand(
		newServerCommand(opts),
		newPushCommand(opts),
		newTopicCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// loadConfig reads the layered configuration and initializes logging from it.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func main() {
	// Use log before slog is initialized
	log.SetFlags(0)
	if err := newRootCommand().Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
