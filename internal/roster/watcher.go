package roster

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mark3labs/roundtable/internal/logger"
)

const debounceInterval = 100 * time.Millisecond

// Watcher reloads a roster file when it changes on disk. The latest valid roster
// is held until the dialogue is between rounds and collects it with Pending.
// Invalid edits are logged and ignored.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	pending *Roster
	timer   *time.Timer
	onLoad  func(*Roster)
	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
}

// NewWatcher creates a watcher for the roster at path. onLoad, if set, is called
// after every successful reload.
func NewWatcher(path string, onLoad func(*Roster)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{
		watcher: w,
		path:    abs,
		onLoad:  onLoad,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Start watches the roster's directory, so editors that replace the file on save
// are still seen, and starts the event loop.
func (rw *Watcher) Start() error {
	if err := rw.watcher.Add(filepath.Dir(rw.path)); err != nil {
		rw.watcher.Close()
		return err
	}
	go rw.eventLoop()
	logger.Info("Roster watcher started for %s", rw.path)
	return nil
}

// Stop shuts down the watcher and event loop.
func (rw *Watcher) Stop() error {
	close(rw.done)
	<-rw.stopped
	rw.mu.Lock()
	if rw.timer != nil {
		rw.timer.Stop()
	}
	rw.mu.Unlock()
	return rw.watcher.Close()
}

// Pending returns the most recently reloaded roster and clears it.
func (rw *Watcher) Pending() (*Roster, bool) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	r := rw.pending
	rw.pending = nil
	return r, r != nil
}

func (rw *Watcher) eventLoop() {
	defer close(rw.stopped)

	for {
		select {
		case <-rw.done:
			return

		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			rw.handleEvent(event)

		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Roster watcher error: %v", err)
		}
	}
}

// handleEvent debounces writes to the roster file into a single reload.
func (rw *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != rw.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.timer != nil {
		rw.timer.Stop()
	}
	rw.timer = time.AfterFunc(debounceInterval, rw.reload)
}

func (rw *Watcher) reload() {
	r, err := Load(rw.path)
	if err != nil {
		logger.Warn("Ignoring roster change: %v", err)
		return
	}

	rw.mu.Lock()
	rw.pending = r
	rw.mu.Unlock()

	logger.Info("Roster reloaded: %d participants", len(r.Participants))
	if rw.onLoad != nil {
		rw.onLoad(r)
	}
}
