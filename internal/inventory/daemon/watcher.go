package daemon

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent is a content change to one tab of a CSV workbook.
type FileEvent struct {
	// Path is the absolute path of the tab file.
	Path string
	// Tab is the sheet name, the file name without ".csv".
	Tab string
	Op  EventOp
}

// FileWatcher watches a CSV workbook directory and emits an event whenever
// a tab's contents differ from the last recorded fingerprint.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	dir     string
	seen    map[string][sha256.Size]byte
}

// NewFileWatcher creates a FileWatcher. Call Start to begin watching.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 16),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
		seen:    make(map[string][sha256.Size]byte),
	}, nil
}

// Start watches dir for *.csv changes. The current contents become the
// baseline, so only later edits produce events.
func (fw *FileWatcher) Start(dir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if err := fw.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", abs, err)
	}
	fw.dir = abs
	fw.snapshotLocked()

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()
	return nil
}

// Stop stops watching and closes the Events and Errors channels.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return fw.watcher.Close()
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)
	err := fw.watcher.Close()
	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Events returns the change notifications. Closed by Stop.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns watcher errors. Closed by Stop.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning reports whether the watcher has been started and not stopped.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

// Snapshot records the current contents of every tab as the baseline.
// The daemon calls it after each sync so its own writes are ignored.
func (fw *FileWatcher) Snapshot() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.snapshotLocked()
}

func (fw *FileWatcher) snapshotLocked() {
	if fw.dir == "" {
		return
	}
	matches, _ := filepath.Glob(filepath.Join(fw.dir, "*.csv"))
	seen := make(map[string][sha256.Size]byte, len(matches))
	for _, path := range matches {
		if sum, ok := fingerprint(path); ok {
			seen[path] = sum
		}
	}
	fw.seen = seen
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fe, ok := fw.convertEvent(event)
			if !ok {
				continue
			}
			select {
			case fw.events <- fe:
			case <-fw.done:
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent filters an fsnotify event down to a real content change of a
// visible *.csv file in the watched directory.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".csv") || strings.HasPrefix(name, ".") {
		return FileEvent{}, false
	}
	path, err := filepath.Abs(event.Name)
	if err != nil || filepath.Dir(path) != fw.dir {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return FileEvent{}, false
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	prev, known := fw.seen[path]
	if op == OpDelete {
		if !known {
			return FileEvent{}, false
		}
		delete(fw.seen, path)
	} else {
		sum, ok := fingerprint(path)
		if !ok || (known && sum == prev) {
			return FileEvent{}, false
		}
		fw.seen[path] = sum
	}

	return FileEvent{
		Path: path,
		Tab:  strings.TrimSuffix(name, ".csv"),
		Op:   op,
	}, true
}

func fingerprint(path string) ([sha256.Size]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(data), true
}
