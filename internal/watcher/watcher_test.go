package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apimart/gateway/internal/config"
)

func TestWatcherReloadsOnContentChange(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("port: 8090\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	reloaded := make(chan *config.Config, 1)
	w, err := NewWatcher(configPath, func(cfg *config.Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	// Give the watch a moment to attach before mutating the file.
	time.Sleep(200 * time.Millisecond)
	if err = os.WriteFile(configPath, []byte("port: 9001\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Port != 9001 {
			t.Fatalf("reloaded port = %d, want 9001", cfg.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestWatcherIgnoresUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := []byte("port: 8090\n")
	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	reloaded := make(chan struct{}, 1)
	w, err := NewWatcher(configPath, func(*config.Config) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	time.Sleep(200 * time.Millisecond)
	// Rewrite identical bytes: the hash gate should swallow the event.
	if err = os.WriteFile(configPath, content, 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-reloaded:
		t.Fatal("identical content must not trigger a reload")
	case <-time.After(1 * time.Second):
	}
}
