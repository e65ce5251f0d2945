package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceDelay coalesces the bursts of write events editors produce into a
// single reload.
const debounceDelay = 500 * time.Millisecond

// Watcher hot-reloads the configuration file and notifies registered
// callbacks. Only enabled in development; elsewhere it is inert and
// GetConfig always returns the initial configuration.
type Watcher struct {
	mu        sync.RWMutex
	path      string
	config    *Config
	callbacks []func(*Config)
	log       *zap.Logger
	watcher   *fsnotify.Watcher
	stop      chan struct{}
}

// NewWatcher watches the configuration file the initial config was loaded
// from.
func NewWatcher(path string, initial *Config, log *zap.Logger) (*Watcher, error) {
	w := &Watcher{
		path:   path,
		config: initial,
		log:    log,
		stop:   make(chan struct{}),
	}

	if initial.Environment != Development || path == "" {
		log.Info("configuration hot reloading disabled",
			zap.String("environment", string(initial.Environment)))
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w.watcher = fw
	go w.watchLoop()

	log.Info("configuration hot reloading enabled", zap.String("path", path))
	return w, nil
}

// OnChange registers a callback invoked after every successful reload.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, callback)
	w.mu.Unlock()
}

// GetConfig returns the current configuration.
func (w *Watcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		close(w.stop)
		w.watcher.Close()
	}
}

func (w *Watcher) watchLoop() {
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			w.log.Info("configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()))

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("file watcher error", zap.Error(err))

		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error("rejecting invalid configuration after reload", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.config = cfg
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, callback := range callbacks {
		callback(cfg)
	}

	w.log.Info("configuration reloaded",
		zap.Int("callbacks_notified", len(callbacks)))
}
