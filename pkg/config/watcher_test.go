package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, path, level string) {
	t.Helper()
	content := `environment: development
telemetry:
  log_level: ` + level + `
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	writeConfig(t, path, "info")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	w := NewWatcher(zerolog.Nop())
	err := w.Watch(ctx, path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer func() { _ = w.Stop() }()

	writeConfig(t, path, "error")

	select {
	case cfg := <-reloaded:
		if cfg.Telemetry.LogLevel != "error" {
			t.Errorf("Expected reloaded level 'error', got %s", cfg.Telemetry.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

func TestWatcherSkipsInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	writeConfig(t, path, "info")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	w := NewWatcher(zerolog.Nop())
	err := w.Watch(ctx, path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer func() { _ = w.Stop() }()

	// An invalid level fails validation; the callback must not fire.
	writeConfig(t, path, "shouting")

	select {
	case cfg := <-reloaded:
		t.Errorf("Expected no reload for invalid config, got level %s", cfg.Telemetry.LogLevel)
	case <-time.After(1500 * time.Millisecond):
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	writeConfig(t, path, "info")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	w := NewWatcher(zerolog.Nop())
	err := w.Watch(ctx, path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer func() { _ = w.Stop() }()

	sibling := filepath.Join(tmpDir, "notes.yaml")
	if err := os.WriteFile(sibling, []byte("scratch: true\n"), 0644); err != nil {
		t.Fatalf("Failed to write sibling file: %v", err)
	}

	select {
	case <-reloaded:
		t.Error("Expected no reload for sibling file changes")
	case <-time.After(1500 * time.Millisecond):
	}
}
