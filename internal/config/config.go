// Package config loads and persists the pigeon configuration file.
//
// The file lives at ~/.pigeon/pigeon.json5. It is parsed as JSON5 so a
// hand-edited config may carry comments and trailing commas; saving
// writes indented plain JSON, which is itself valid JSON5.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/titanous/json5"
)

const (
	// DefaultAddr is the loopback listen address of the API server.
	DefaultAddr = "127.0.0.1:8750"

	defaultChatURL = "https://web.whatsapp.com"

	defaultSendTimeout = 30 * time.Second

	// minSendTimeout is the floor on the delivery confirmation wait.
	// Sends regularly take tens of seconds on a cold browser session.
	minSendTimeout = 20 * time.Second
)

// Config is the persisted daemon configuration.
type Config struct {
	// DataDir holds the database and the browser profile. Empty means
	// ~/.pigeon.
	DataDir string `json:"dataDir,omitempty"`

	Server  ServerConfig  `json:"server"`
	Sender  SenderConfig  `json:"sender"`
	Log     LogConfig     `json:"log"`
	Tracing TracingConfig `json:"tracing,omitempty"`
	Tailnet TailnetConfig `json:"tailnet,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr"`

	// AuthToken protects the API with a bearer token. Empty leaves the
	// API open, which is fine for the loopback default; set it before
	// exposing the port.
	AuthToken string `json:"authToken,omitempty"`

	// RatePerSec and RateBurst bound mutating requests per client.
	RatePerSec float64 `json:"ratePerSec,omitempty"`
	RateBurst  int     `json:"rateBurst,omitempty"`
}

// SenderConfig configures the browser-automation sender.
type SenderConfig struct {
	// ChatURL is the web chat client the browser drives.
	ChatURL string `json:"chatUrl"`

	// Headless runs the browser without a window. Defaults to true; set
	// false to watch the session or scan the QR straight off the page.
	Headless *bool `json:"headless,omitempty"`

	// ProfileDir persists the browser session between runs. Empty means
	// <dataDir>/browser.
	ProfileDir string `json:"profileDir,omitempty"`

	// SendTimeoutSec bounds one delivery confirmation wait. Values
	// below 20 are raised to 20.
	SendTimeoutSec int `json:"sendTimeoutSec,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level string `json:"level,omitempty"` // debug, info, warn, error
}

// TracingConfig configures attempt-span collection and OTLP export.
type TracingConfig struct {
	Enabled bool `json:"enabled,omitempty"`

	// Endpoint is the OTLP collector address, e.g. "localhost:4317".
	Endpoint string `json:"endpoint,omitempty"`

	// Protocol selects the OTLP transport: "grpc" (default) or "http".
	Protocol string `json:"protocol,omitempty"`

	// SpanBuffer is the size of the in-memory attempt span ring.
	SpanBuffer int `json:"spanBuffer,omitempty"`
}

// TailnetConfig configures the optional tsnet listener.
type TailnetConfig struct {
	Hostname string `json:"hostname,omitempty"`
	AuthKey  string `json:"authKey,omitempty"`
	StateDir string `json:"stateDir,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{Addr: DefaultAddr},
		Sender: SenderConfig{ChatURL: defaultChatURL},
		Log:    LogConfig{Level: "info"},
	}
	cfg.normalize()
	return cfg
}

// DefaultDir returns the data directory: $PIGEON_HOME if set, otherwise
// ~/.pigeon.
func DefaultDir() string {
	if dir := os.Getenv("PIGEON_HOME"); dir != "" {
		return ExpandHome(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pigeon"
	}
	return filepath.Join(home, ".pigeon")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "pigeon.json5")
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json5.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	return &cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to defaults
// otherwise.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("config unreadable, using defaults", "path", path, "error", err)
		}
		return Default()
	}
	return cfg
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	// The file may carry an API token.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// Dir returns the resolved data directory.
func (c *Config) Dir() string {
	if c.DataDir != "" {
		return ExpandHome(c.DataDir)
	}
	return DefaultDir()
}

// DBPath returns the SQLite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.Dir(), "pigeon.db")
}

// BrowserProfileDir returns the persistent browser profile location.
func (c *Config) BrowserProfileDir() string {
	if c.Sender.ProfileDir != "" {
		return ExpandHome(c.Sender.ProfileDir)
	}
	return filepath.Join(c.Dir(), "browser")
}

// Headless reports whether the browser should run without a window.
func (c *Config) Headless() bool {
	if c.Sender.Headless == nil {
		return true
	}
	return *c.Sender.Headless
}

// SendTimeout returns the delivery confirmation timeout.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Sender.SendTimeoutSec) * time.Second
}

// LogLevel maps the configured level onto slog.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) normalize() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.RatePerSec <= 0 {
		c.Server.RatePerSec = 5
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = 10
	}
	if c.Sender.ChatURL == "" {
		c.Sender.ChatURL = defaultChatURL
	}
	switch {
	case c.Sender.SendTimeoutSec <= 0:
		c.Sender.SendTimeoutSec = int(defaultSendTimeout / time.Second)
	case time.Duration(c.Sender.SendTimeoutSec)*time.Second < minSendTimeout:
		c.Sender.SendTimeoutSec = int(minSendTimeout / time.Second)
	}
	if c.Tracing.Protocol == "" {
		c.Tracing.Protocol = "grpc"
	}
	if c.Tracing.SpanBuffer <= 0 {
		c.Tracing.SpanBuffer = 256
	}
}
