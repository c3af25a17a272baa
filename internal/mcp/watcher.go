package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"toolrace/internal/logging"
)

// DefaultReloadDebounce batches the burst of events editors emit on save.
const DefaultReloadDebounce = 250 * time.Millisecond

// RegistryWatcher reloads a server registry file whenever it changes on disk.
// Each reload builds a brand-new Manager; managers already handed out are
// never mutated.
type RegistryWatcher struct {
	path     string
	opts     []Option
	onReload func(*Manager)
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewRegistryWatcher starts watching the directory holding path. onReload
// receives a freshly loaded Manager after every change that parses cleanly.
// Run must be called to deliver events.
func NewRegistryWatcher(path string, onReload func(*Manager), opts ...Option) (*RegistryWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve registry path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory so atomic rename-on-save is seen.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	logging.ConfigDebug("Watching server registry %s", abs)

	return &RegistryWatcher{
		path:     abs,
		opts:     opts,
		onReload: onReload,
		debounce: DefaultReloadDebounce,
		watcher:  watcher,
	}, nil
}

// Run delivers reloads until ctx is done, then closes the watcher.
func (w *RegistryWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			logging.ConfigDebug("Registry event %s on %s", event.Op, event.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Stop()
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.ConfigWarn("Registry watcher error: %v", err)

		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *RegistryWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0
}

func (w *RegistryWatcher) reload() {
	m := NewManager(w.opts...)
	if err := m.LoadFromConfig(w.path); err != nil {
		logging.ConfigWarn("Keeping previous registry, reload of %s failed: %v", w.path, err)
		return
	}
	logging.Config("Reloaded %d tool servers from %s", len(m.Servers()), w.path)
	if w.onReload != nil {
		w.onReload(m)
	}
}
