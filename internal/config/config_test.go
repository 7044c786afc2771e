package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if !cfg.Headless() {
		t.Error("Headless() = false, want true by default")
	}
	if cfg.SendTimeout() != 30*time.Second {
		t.Errorf("SendTimeout() = %v, want 30s", cfg.SendTimeout())
	}
	if cfg.LogLevel() != slog.LevelInfo {
		t.Errorf("LogLevel() = %v, want info", cfg.LogLevel())
	}
	if cfg.Tracing.Protocol != "grpc" || cfg.Tracing.SpanBuffer != 256 {
		t.Errorf("tracing defaults = %q/%d, want grpc/256", cfg.Tracing.Protocol, cfg.Tracing.SpanBuffer)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pigeon.json5")
	raw := `{
		// comments survive json5
		server: { addr: "127.0.0.1:9999", authToken: "secret" },
		sender: { headless: false, sendTimeoutSec: 5 },
		log: { level: "debug" },
	}`
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.AuthToken != "secret" {
		t.Errorf("AuthToken = %q", cfg.Server.AuthToken)
	}
	if cfg.Headless() {
		t.Error("Headless() = true, want false from file")
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("LogLevel() = %v, want debug", cfg.LogLevel())
	}
	// 5s is below the confirmation floor and gets raised.
	if cfg.SendTimeout() != 20*time.Second {
		t.Errorf("SendTimeout() = %v, want 20s floor", cfg.SendTimeout())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want ErrNotExist", err)
	}

	cfg := LoadOrDefault(filepath.Join(t.TempDir(), "absent.json5"))
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("LoadOrDefault(missing).Addr = %q, want default", cfg.Server.Addr)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "pigeon.json5")

	cfg := Default()
	cfg.Server.AuthToken = "tok"
	cfg.DataDir = "/tmp/pigeon-test"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after Save error = %v", err)
	}
	if got.Server.AuthToken != "tok" || got.DataDir != "/tmp/pigeon-test" {
		t.Errorf("round trip = %+v", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}

	if got := ExpandHome("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Errorf("ExpandHome(~/x/y) = %q", got)
	}
	if got := ExpandHome("~"); got != home {
		t.Errorf("ExpandHome(~) = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome(/abs/path) = %q", got)
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data/pigeon"

	if got := cfg.DBPath(); got != "/data/pigeon/pigeon.db" {
		t.Errorf("DBPath() = %q", got)
	}
	if got := cfg.BrowserProfileDir(); got != "/data/pigeon/browser" {
		t.Errorf("BrowserProfileDir() = %q", got)
	}

	cfg.Sender.ProfileDir = "/elsewhere/profile"
	if got := cfg.BrowserProfileDir(); got != "/elsewhere/profile" {
		t.Errorf("BrowserProfileDir() override = %q", got)
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pigeon.json5")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	cfg := Default()
	cfg.Log.Level = "debug"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-reloaded:
		if got.LogLevel() != slog.LevelDebug {
			t.Errorf("reloaded LogLevel = %v, want debug", got.LogLevel())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change never observed")
	}
}
