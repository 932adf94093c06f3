package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig holds configuration for the config watcher.
type WatcherConfig struct {
	// ConfigPath is the path to watch for changes.
	ConfigPath string

	// ProjectDir is passed to LoadFrom on reload.
	ProjectDir string

	// DebounceInterval is the time to wait before triggering reload after changes.
	DebounceInterval time.Duration

	// OnReload receives the freshly loaded configuration.
	OnReload func(ctx context.Context, cfg *Config) error

	// OnError is called when an error occurs during watching or reloading.
	// An invalid file keeps the previous configuration in place.
	OnError func(err error)
}

// DefaultWatcherConfig returns a WatcherConfig with a 500ms debounce.
func DefaultWatcherConfig(configPath string) WatcherConfig {
	return WatcherConfig{
		ConfigPath:       configPath,
		DebounceInterval: 500 * time.Millisecond,
	}
}

// Watcher monitors the configuration file and reloads it on change.
type Watcher struct {
	config  WatcherConfig
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a new configuration watcher.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		config:  config,
		watcher: fsWatcher,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching for configuration changes.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	// Watch the directory so editors that replace the file are still seen.
	if err := w.watcher.Add(filepath.Dir(w.config.ConfigPath)); err != nil {
		return err
	}
	w.running = true

	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.doneCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	configFile := filepath.Base(w.config.ConfigPath)

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.NewTimer(w.config.DebounceInterval)
				debounceCh = debounceTimer.C
			}

		case <-debounceCh:
			debounceCh = nil
			w.reload(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.fail(err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := LoadFrom(w.config.ConfigPath, w.config.ProjectDir)
	if err != nil {
		w.fail(err)
		return
	}
	if w.config.OnReload != nil {
		if err := w.config.OnReload(ctx, cfg); err != nil {
			w.fail(err)
		}
	}
}

func (w *Watcher) fail(err error) {
	if w.config.OnError != nil {
		w.config.OnError(err)
	}
}
