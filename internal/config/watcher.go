package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reloads the static config file on change and notifies subscribers.
type Watcher struct {
	mu       sync.RWMutex
	path     string
	cfg      *Config
	lastMod  time.Time
	onChange []func(*Config)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher wraps an already-loaded config for hot reload.
func NewWatcher(path string, cfg *Config) *Watcher {
	w := &Watcher{path: path, cfg: cfg, stopCh: make(chan struct{})}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start begins watching the config file. Uses fsnotify, falling back to
// polling when the watch cannot be established.
func (w *Watcher) Start() {
	if w.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("failed to create file watcher, falling back to polling")
		go w.pollLoop()
		return
	}
	if err := watcher.Add(w.path); err != nil {
		log.WithError(err).WithField("path", w.path).Warn("failed to watch config file, falling back to polling")
		watcher.Close()
		go w.pollLoop()
		return
	}
	// Watch the directory too, to catch atomic writes (rename operations).
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		log.WithError(err).Warn("failed to watch config directory")
	}
	log.WithField("path", w.path).Info("config watcher started using fsnotify")

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		const debounceDelay = 100 * time.Millisecond

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != w.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, w.checkAndReload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config watcher error")
			case <-w.stopCh:
				if debounce != nil {
					debounce.Stop()
				}
				return
			}
		}
	}()
}

// Stop terminates watching.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Watcher) pollLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	log.WithField("interval", "5s").Info("config watcher started using polling")
	for {
		select {
		case <-ticker.C:
			w.checkAndReload()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) checkAndReload() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}

	w.mu.Lock()
	unchanged := !info.ModTime().After(w.lastMod)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		log.WithError(err).WithField("path", w.path).Error("config reload failed, keeping previous config")
		return
	}

	w.mu.Lock()
	w.cfg = cfg
	w.lastMod = info.ModTime()
	callbacks := append([]func(*Config){}, w.onChange...)
	w.mu.Unlock()

	log.WithField("path", w.path).Info("configuration reloaded")
	for _, fn := range callbacks {
		fn(cfg)
	}
}
