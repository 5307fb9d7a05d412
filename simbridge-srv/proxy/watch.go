package proxy

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces editor write bursts into one reload.
const reloadDebounce = 100 * time.Millisecond

// sourceWatcher re-imports file-backed simulation sources when the file
// changes on disk.
type sourceWatcher struct {
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	reloads map[string]func()
	timers  map[string]*time.Timer
	done    chan struct{}
	closed  bool
}

func newSourceWatcher() (*sourceWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	sw := &sourceWatcher{
		watcher: fsw,
		reloads: make(map[string]func()),
		timers:  make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}
	go sw.loop()
	return sw, nil
}

// Watch registers a reload callback for path. Watching the parent
// directory also catches atomic rename-style saves.
func (sw *sourceWatcher) Watch(path string, reload func()) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sw.mu.Lock()
	sw.reloads[abs] = reload
	sw.mu.Unlock()

	if err := sw.watcher.Add(filepath.Dir(abs)); err != nil {
		log.Warn("Failed to watch %s: %v", abs, err)
	}
}

func (sw *sourceWatcher) loop() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			sw.trigger(event.Name)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("Source watcher error: %v", err)
		}
	}
}

func (sw *sourceWatcher) trigger(name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		abs = name
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	reload, ok := sw.reloads[abs]
	if !ok || sw.closed {
		return
	}
	if timer, ok := sw.timers[abs]; ok {
		timer.Stop()
	}
	sw.timers[abs] = time.AfterFunc(reloadDebounce, reload)
}

func (sw *sourceWatcher) Close() {
	sw.mu.Lock()
	if sw.closed {
		sw.mu.Unlock()
		return
	}
	sw.closed = true
	for _, timer := range sw.timers {
		timer.Stop()
	}
	sw.mu.Unlock()

	close(sw.done)
	_ = sw.watcher.Close()
}
