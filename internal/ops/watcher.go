package ops

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

const (
	defaultWatchInterval = time.Second
	settleDelay          = 100 * time.Millisecond
)

// Watcher reloads a config file when it changes. File events trigger an
// immediate reload; a ModTime ticker covers filesystems without events.
type Watcher struct {
	path     string
	interval time.Duration
	update   func(Loaded)

	mu      sync.Mutex
	lastMod time.Time
}

// NewWatcher creates a watcher for path that calls update with every
// successfully loaded revision.
func NewWatcher(path string, interval time.Duration, update func(Loaded)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	w := &Watcher{path: abs, interval: interval, update: update}
	if info, err := os.Stat(abs); err == nil {
		w.lastMod = info.ModTime()
	}
	return w, nil
}

// Run watches until ctx is done. It falls back to the ticker alone when
// fsnotify cannot be started.
func (w *Watcher) Run(ctx context.Context) {
	var events chan fsnotify.Event
	var errs chan error

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		logs.Errorf("config watcher unavailable, polling only, err: %+v", err)
	} else {
		defer fw.Close()
		if err := fw.Add(filepath.Dir(w.path)); err != nil {
			logs.Errorf("watch config dir %s, err: %+v", filepath.Dir(w.path), err)
		} else {
			events = fw.Events
			errs = fw.Errors
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			time.Sleep(settleDelay)
			w.check()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logs.Errorf("config watcher, err: %+v", err)
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file when its ModTime moved forward.
func (w *Watcher) check() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		logs.Errorf("config stat failed, err: %+v", err)
		return false
	}
	if !info.ModTime().After(w.lastMod) {
		return false
	}
	loaded, err := Load(w.path)
	if err != nil {
		logs.Errorf("config reload failed, err: %+v", err)
		return false
	}
	w.lastMod = info.ModTime()
	if w.update != nil {
		w.update(loaded)
	}
	logs.Infof("config reloaded: %s", w.path)
	return true
}
