package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go-simpler.org/env"
)

// FileName is the config file looked up in the home and working directories.
const FileName = "task-streamer.toml"

const (
	DefaultPort   = "8128"
	DefaultBind   = "127.0.0.1"
	DefaultFilter = "status:pending"
)

type Config struct {
	AppEnv    string `mapstructure:"app_env" env:"APP_ENV"`
	LogLevel  string `mapstructure:"log_level" env:"LOG_LEVEL"`
	LogFormat string `mapstructure:"log_format" env:"LOG_FORMAT"`

	Server ServerConfig `mapstructure:"server"`
	Client ClientConfig `mapstructure:"client"`
}

type ServerConfig struct {
	Port     string   `mapstructure:"port" env:"TS_PORT"`
	Bind     []string `mapstructure:"bind" env:"TS_BIND"` // space separated in the environment
	APIKey   string   `mapstructure:"api_key" env:"TS_SERVER_API_KEY"`
	RedisURL string   `mapstructure:"redis_url" env:"REDIS_URL"`

	MaxViewerConnections      int `mapstructure:"max_viewer_connections" env:"MAX_VIEWER_CONNECTIONS"`
	MaxViewerConnectionsPerIP int `mapstructure:"max_viewer_connections_per_ip" env:"MAX_VIEWER_CONNECTIONS_PER_IP"`
}

type ClientConfig struct {
	Server string `mapstructure:"server" env:"TS_SERVER"`
	Filter string `mapstructure:"filter" env:"TS_FILTER"`
	APIKey string `mapstructure:"api_key" env:"TS_API_KEY"`
}

// Default returns the configuration used when no file, environment or flag
// says otherwise.
func Default() *Config {
	return &Config{
		AppEnv:    "development",
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Port:                      DefaultPort,
			Bind:                      []string{DefaultBind},
			MaxViewerConnections:      1000,
			MaxViewerConnectionsPerIP: 50,
		},
		Client: ClientConfig{
			Filter: DefaultFilter,
		},
	}
}

// Load builds the configuration from defaults, then the TOML config file,
// then a .env file and the process environment. An explicit path replaces
// the default lookup and is skipped with a warning when it does not exist;
// without one, $HOME/task-streamer.toml and ./task-streamer.toml are merged
// in that order when present.
func Load(path string) (*Config, error) {
	var files []string
	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			files = []string{path}
		case errors.Is(err, fs.ErrNotExist):
			slog.Warn("Config file not found, using defaults and environment", "path", path)
		default:
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	} else {
		files = defaultFiles()
	}

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	return load(files)
}

func defaultFiles() []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	dirs = append(dirs, ".")

	var files []string
	for _, dir := range dirs {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			files = append(files, candidate)
		}
	}
	return files
}

func load(files []string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("toml")
	for i, file := range files {
		v.SetConfigFile(file)
		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
		slog.Debug("Loaded config file", "path", file)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := env.Load(cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.Server.Bind = normalizeBind(cfg.Server.Bind)
	return cfg, nil
}

// normalizeBind drops blanks and duplicates while keeping order.
func normalizeBind(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	if len(out) == 0 {
		out = append(out, DefaultBind)
	}
	return out
}

// ValidateServer checks the settings the server subcommand needs.
func (c *Config) ValidateServer() error {
	if c.Server.APIKey == "" {
		return errors.New("server api_key is required (config [server] api_key or TS_SERVER_API_KEY)")
	}
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.MaxViewerConnections <= 0 || c.Server.MaxViewerConnectionsPerIP <= 0 {
		return errors.New("viewer connection limits must be positive")
	}
	return nil
}

// ValidateClient checks the settings the push and topic subcommands need.
func (c *Config) ValidateClient() error {
	if c.Client.Server == "" {
		return errors.New("server must be specified either in config or via parameter")
	}
	if c.Client.APIKey == "" {
		return errors.New("api key must be specified either in config or via parameter")
	}
	return nil
}

// Addresses returns host:port pairs for every bind address.
func (s ServerConfig) Addresses() []string {
	addrs := make([]string, 0, len(s.Bind))
	for _, host := range s.Bind {
		if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
			host = "[" + host + "]"
		}
		addrs = append(addrs, host+":"+s.Port)
	}
	return addrs
}
