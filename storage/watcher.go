package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherClosed is returned when using a closed FileWatcher.
var ErrWatcherClosed = errors.New("file watcher closed")

// Change is one key whose token differs from the last observed state of its container.
type Change struct {
	Container string
	Key       string
	Token     string
	// Deleted is set when the key disappeared from the container.
	Deleted bool
}

// FileWatcher reports key-level changes to the container files of a FileStorage,
// whichever process wrote them.
type FileWatcher struct {
	mu sync.Mutex

	store     *FileStorage
	watcher   *fsnotify.Watcher
	snapshots map[string]map[string]string

	changes chan Change
	errors  chan error

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// NewFileWatcher starts watching the root of store, creating it if needed.
// The current contents of every container are the baseline for later diffs.
func NewFileWatcher(store *FileStorage) (*FileWatcher, error) {
	if err := os.MkdirAll(store.Root(), 0o755); err != nil {
		return nil, fmt.Errorf("file watcher: create %s: %w", store.Root(), err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("file watcher: %w", err)
	}
	if err := fsw.Add(store.Root()); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("file watcher: watch %s: %w", store.Root(), err)
	}

	w := &FileWatcher{
		store:     store,
		watcher:   fsw,
		snapshots: make(map[string]map[string]string),
		changes:   make(chan Change, 64),
		errors:    make(chan error, 8),
		closeCh:   make(chan struct{}),
	}

	names, err := store.Containers()
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	for _, name := range names {
		path, _ := store.Path(name)
		w.snapshots[name] = readContainerFile(path)
	}

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Changes returns the change channel. It is closed by Close.
func (w *FileWatcher) Changes() <-chan Change {
	return w.changes
}

// Errors returns the error channel. It is closed by Close.
func (w *FileWatcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher.
func (w *FileWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.closedWg.Wait()

	close(w.changes)
	close(w.errors)
	return err
}

func (w *FileWatcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *FileWatcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	name, ok := containerName(filepath.Base(ev.Name))
	if !ok {
		return
	}

	path, _ := w.store.Path(name)
	current := readContainerFile(path)

	w.mu.Lock()
	previous := w.snapshots[name]
	w.snapshots[name] = current
	w.mu.Unlock()

	for _, c := range diffContainer(name, previous, current) {
		select {
		case w.changes <- c:
		case <-w.closeCh:
			return
		}
	}
}

// diffContainer lists the keys that differ between two states of a container.
func diffContainer(container string, previous, current map[string]string) []Change {
	var changes []Change
	for _, key := range sortedKeys(current) {
		if old, ok := previous[key]; !ok || old != current[key] {
			changes = append(changes, Change{Container: container, Key: key, Token: current[key]})
		}
	}
	for _, key := range sortedKeys(previous) {
		if _, ok := current[key]; !ok {
			changes = append(changes, Change{Container: container, Key: key, Deleted: true})
		}
	}
	return changes
}
