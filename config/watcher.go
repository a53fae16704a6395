// 配置文件变更监听器实现。
//
// 轮询配置文件修改时间，防抖后重新加载并回调。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadFunc 在配置重新加载成功后调用
type ReloadFunc func(prev, next *Config)

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithPollInterval sets how often the file is checked
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithDebounceDelay sets the quiet period before a change is applied
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher reloads a config file when its modification time moves forward.
// A reload that fails to parse or validate keeps the current config.
type Watcher struct {
	mu sync.RWMutex

	loader        *Loader
	path          string
	pollInterval  time.Duration
	debounceDelay time.Duration

	current  *Config
	lastMod  time.Time
	pending  *time.Timer
	running  bool
	stopChan chan struct{}
	done     chan struct{}

	callbacks []ReloadFunc
	logger    *zap.Logger
}

// NewWatcher creates a watcher for the loader's config file. current is the
// config already in use.
func NewWatcher(loader *Loader, current *Config, opts ...WatcherOption) (*Watcher, error) {
	if loader == nil || loader.configPath == "" {
		return nil, fmt.Errorf("watcher requires a loader with a config path")
	}
	if current == nil {
		return nil, fmt.Errorf("watcher requires the current config")
	}

	w := &Watcher{
		loader:        loader,
		path:          loader.configPath,
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		current:       current,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"), zap.String("path", w.path))

	if info, err := os.Stat(w.path); err == nil {
		w.lastMod = info.ModTime()
	} else if os.IsNotExist(err) {
		w.logger.Warn("config file does not exist, will watch for creation")
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", w.path, err)
	}

	return w, nil
}

// OnReload registers a callback for applied reloads
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Current returns the config in effect
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins polling until ctx is done or Stop is called
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	stop, done := w.stopChan, w.done
	w.mu.Unlock()

	go w.pollLoop(ctx, stop, done)

	w.logger.Info("config watcher started",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop stops polling and cancels a pending reload
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("config watcher stopped")
}

// IsRunning returns whether the watcher is running
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) pollLoop(ctx context.Context, stop <-chan struct{}, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			if w.pending != nil {
				w.pending.Stop()
				w.pending = nil
			}
			w.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check schedules a reload when the file changed since the last look
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running || !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounceDelay, w.reload)
}

// Reload loads the file now and applies it if valid
func (w *Watcher) Reload() error {
	next, err := w.loader.Load()
	if err != nil {
		w.logger.Warn("config reload rejected", zap.Error(err))
		return err
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	callbacks := make([]ReloadFunc, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("config reloaded")
	for _, cb := range callbacks {
		cb(prev, next)
	}
	return nil
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()
	_ = w.Reload()
}
