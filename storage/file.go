package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/atomic-state/atomicstate"
)

// File persists state as a single JSON document on disk. Writes go
// through a temp file and rename, so the file on disk is always a
// complete document. With WithWatch the adapter reloads the document
// when another process rewrites it.
type File struct {
	path  string
	mode  os.FileMode
	watch bool

	mu   sync.Mutex
	data map[string]json.RawMessage

	onChange func()
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

var _ atomicstate.PersistenceAdapter = (*File)(nil)

// FileOption configures a file adapter.
type FileOption func(*File)

// WithFileMode sets the permission bits for the state file.
func WithFileMode(mode os.FileMode) FileOption {
	return func(f *File) {
		f.mode = mode
	}
}

// WithWatch reloads the document when another process rewrites the file.
// onChange, if non-nil, runs after every reload that changed the data.
func WithWatch(onChange func()) FileOption {
	return func(f *File) {
		f.watch = true
		f.onChange = onChange
	}
}

// fileDebounce is how long the watcher waits after the last event before
// reloading, so editors that write in several steps settle first.
const fileDebounce = 50 * time.Millisecond

// NewFile creates a file adapter at path, loading the document if the
// file already exists. The parent directory is created if missing.
func NewFile(path string, opts ...FileOption) (*File, error) {
	f := &File{
		path: filepath.Clean(path),
		mode: 0o644,
		data: make(map[string]json.RawMessage),
	}
	for _, opt := range opts {
		opt(f)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	loaded, err := f.load()
	if err != nil {
		return nil, err
	}
	if loaded != nil {
		f.data = loaded
	}

	if f.watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("create file watcher: %w", err)
		}
		// Watch the directory, not the file: rename-based saves replace
		// the inode and a file watch would go stale after the first one.
		if err := watcher.Add(filepath.Dir(f.path)); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch state directory: %w", err)
		}
		f.watcher = watcher
		f.stop = make(chan struct{})
		f.done = make(chan struct{})
		go f.run()
	}

	return f, nil
}

// GetItem returns the stored copy for key, or found=false.
func (f *File) GetItem(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	value, ok := f.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// SetItem stores value under key and rewrites the file.
func (f *File) SetItem(_ context.Context, key string, value []byte) error {
	stored := make(json.RawMessage, len(value))
	copy(stored, value)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = stored
	return f.save()
}

// RemoveItem deletes key and rewrites the file. Removing a missing key
// is not an error and does not touch the file.
func (f *File) RemoveItem(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.data[key]; !ok {
		return nil
	}
	delete(f.data, key)
	return f.save()
}

// Path returns the location of the state file.
func (f *File) Path() string {
	return f.path
}

// Close stops the change watcher. The state file stays on disk.
func (f *File) Close() error {
	if f.watcher == nil {
		return nil
	}
	f.stopOnce.Do(func() { close(f.stop) })
	<-f.done
	return f.watcher.Close()
}

// save rewrites the document atomically. Callers hold f.mu.
func (f *File) save() error {
	data, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, f.mode); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// load reads the document from disk. A missing file returns nil, nil.
func (f *File) load() (map[string]json.RawMessage, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	data := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", f.path, err)
	}
	return data, nil
}

// run reloads the document after filesystem events for the state file
// settle. Events fired by the adapter's own saves reload identical data
// and are dropped by the equality check.
func (f *File) run() {
	defer close(f.done)

	var settle <-chan time.Time
	for {
		select {
		case <-f.stop:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(f.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			settle = time.After(fileDebounce)
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		case <-settle:
			settle = nil
			f.reload()
		}
	}
}

// reload swaps in the on-disk document if it parses and differs from the
// current data. Partial writes from non-atomic external writers fail to
// parse and are skipped; the next event retries. The lock is held across
// the read so a concurrent SetItem cannot be rolled back by stale disk
// contents.
func (f *File) reload() {
	f.mu.Lock()
	loaded, err := f.load()
	if err != nil || loaded == nil {
		f.mu.Unlock()
		return
	}
	changed := !rawMapEqual(f.data, loaded)
	if changed {
		f.data = loaded
	}
	onChange := f.onChange
	f.mu.Unlock()

	if changed && onChange != nil {
		onChange()
	}
}

func rawMapEqual(a, b map[string]json.RawMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for key, av := range a {
		bv, ok := b[key]
		if !ok || !bytes.Equal(av, bv) {
			return false
		}
	}
	return true
}
