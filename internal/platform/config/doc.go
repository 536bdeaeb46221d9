// Package config provides layered configuration.
//
// Defaults, then task-streamer.toml (spf13/viper), then .env (godotenv) and
// the environment (go-simpler.org/env struct tags). Command line flags are
// applied on top by the CLI.
package config
