package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// FileEnv names the environment variable pointing at an optional config file.
const FileEnv = "MELIUS_CONFIG"

// Recursive watch modes
const (
	RecursiveAuto = "auto" // darwin and windows only
	RecursiveOn   = "on"
	RecursiveOff  = "off"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `toml:"server" yaml:"server"`
	Logging    LogConfig        `toml:"logging" yaml:"logging"`
	Watcher    WatcherConfig    `toml:"watcher" yaml:"watcher"`
	Terminal   TerminalConfig   `toml:"terminal" yaml:"terminal"`
	Extensions ExtensionsConfig `toml:"extensions" yaml:"extensions"`
	Bridge     BridgeConfig     `toml:"bridge" yaml:"bridge"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string   `envconfig:"PORT" toml:"port" yaml:"port"`
	Host         string   `envconfig:"HOST" toml:"host" yaml:"host"`
	AllowOrigins []string `envconfig:"ALLOW_ORIGINS" toml:"allow_origins" yaml:"allow_origins"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" toml:"level" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" toml:"development" yaml:"development"`
}

// WatcherConfig holds workspace watcher timings.
type WatcherConfig struct {
	ProbeDelay   time.Duration `envconfig:"WATCH_PROBE_DELAY" toml:"probe_delay" yaml:"probe_delay"`
	RebuildDelay time.Duration `envconfig:"WATCH_REBUILD_DELAY" toml:"rebuild_delay" yaml:"rebuild_delay"`
	Recursive    string        `envconfig:"WATCH_RECURSIVE" toml:"recursive" yaml:"recursive"`
}

// TerminalConfig holds terminal defaults.
type TerminalConfig struct {
	PTY         bool `envconfig:"TERMINAL_PTY" toml:"pty" yaml:"pty"`
	DefaultCols int  `envconfig:"TERMINAL_DEFAULT_COLS" toml:"default_cols" yaml:"default_cols"`
	DefaultRows int  `envconfig:"TERMINAL_DEFAULT_ROWS" toml:"default_rows" yaml:"default_rows"`
}

// ExtensionsConfig holds extension runtime limits.
type ExtensionsConfig struct {
	ActivationTimeout time.Duration `envconfig:"EXTENSIONS_ACTIVATION_TIMEOUT" toml:"activation_timeout" yaml:"activation_timeout"`
	CommandTimeout    time.Duration `envconfig:"EXTENSIONS_COMMAND_TIMEOUT" toml:"command_timeout" yaml:"command_timeout"`
}

// BridgeConfig holds per-connection limits for the UI bridge.
type BridgeConfig struct {
	RequestsPerSecond int `envconfig:"BRIDGE_RATE_RPS" toml:"requests_per_second" yaml:"requests_per_second"`
	Burst             int `envconfig:"BRIDGE_RATE_BURST" toml:"burst" yaml:"burst"`
	MaxMessageSize    int `envconfig:"BRIDGE_MAX_MESSAGE" toml:"max_message_size" yaml:"max_message_size"`
}

// Load builds configuration from defaults, then the optional config file
// named by MELIUS_CONFIG, then environment variables.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// No default tags: unset variables leave the file/default value alone.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8000",
			Host:         "127.0.0.1",
			AllowOrigins: []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Watcher: WatcherConfig{
			ProbeDelay:   140 * time.Millisecond,
			RebuildDelay: 500 * time.Millisecond,
			Recursive:    RecursiveAuto,
		},
		Terminal: TerminalConfig{
			PTY:         true,
			DefaultCols: 120,
			DefaultRows: 35,
		},
		Extensions: ExtensionsConfig{
			ActivationTimeout: 10 * time.Second,
			CommandTimeout:    30 * time.Second,
		},
		Bridge: BridgeConfig{
			RequestsPerSecond: 200,
			Burst:             400,
			MaxMessageSize:    4 * 1024 * 1024,
		},
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Watcher.Recursive {
	case RecursiveAuto, RecursiveOn, RecursiveOff:
	default:
		return fmt.Errorf("invalid WATCH_RECURSIVE %q (want auto, on or off)", c.Watcher.Recursive)
	}
	if c.Watcher.ProbeDelay <= 0 || c.Watcher.RebuildDelay <= 0 {
		return fmt.Errorf("watcher delays must be positive")
	}
	if c.Bridge.RequestsPerSecond <= 0 || c.Bridge.Burst <= 0 {
		return fmt.Errorf("bridge rate limit must be positive")
	}
	return nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
