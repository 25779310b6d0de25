// Package watcher monitors the gateway configuration file and swaps a
// fresh policy snapshot into the running filter when the file changes.
// Route tables stay immutable from a request's point of view: a request
// loads one snapshot at entry and keeps it.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/apimart/gateway/internal/config"
)

// Watcher watches the config file for changes.
type Watcher struct {
	configPath     string
	watcher        *fsnotify.Watcher
	reloadCallback func(*config.Config)
	lastConfigHash string
}

// NewWatcher creates a watcher that invokes reloadCallback with the
// freshly parsed config whenever the file content actually changes.
func NewWatcher(configPath string, reloadCallback func(*config.Config)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		configPath:     configPath,
		watcher:        fsWatcher,
		reloadCallback: reloadCallback,
	}
	w.lastConfigHash = w.hashConfig()
	return w, nil
}

// Start begins watching. It blocks until ctx is done, so callers run it
// on its own goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	// Watch the directory, not the file: editors and config writers
	// replace files by rename, which drops a file-level watch.
	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		log.Errorf("failed to watch config directory: %v", err)
		return err
	}
	log.Debugf("watching config file: %s", w.configPath)

	defer func() { _ = w.watcher.Close() }()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.isConfigEvent(event) {
				continue
			}
			// Writers may still be flushing when the event fires.
			time.Sleep(100 * time.Millisecond)
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Clean(event.Name), filepath.Clean(w.configPath)) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) reload() {
	hash := w.hashConfig()
	if hash == "" || hash == w.lastConfigHash {
		return
	}
	cfg, err := config.LoadConfig(w.configPath)
	if err != nil {
		log.Errorf("failed to reload config, keeping previous snapshot: %v", err)
		return
	}
	w.lastConfigHash = hash
	log.Infof("config file changed, swapping policy snapshot")
	w.reloadCallback(cfg)
}

func (w *Watcher) hashConfig() string {
	data, err := os.ReadFile(w.configPath)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
