package assets

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// Watcher reports changes to resolved files. It never touches a document:
// callers receive batches of paths and run reload and propagation
// themselves under the document lock.
type Watcher struct {
	w        *fsnotify.Watcher
	mu       sync.Mutex
	files    map[string]bool
	dirs     map[string]bool
	debounce time.Duration
	batches  chan []string
	log      hclog.Logger
}

func NewWatcher(debounce time.Duration, log hclog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Watcher{
		w:        fw,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		debounce: debounce,
		batches:  make(chan []string, 1),
		log:      log,
	}, nil
}

// Add watches path. The parent directory is watched so that editors which
// replace files on save are still seen. Add is safe to call while Run is
// pumping events.
func (w *Watcher) Add(path string) error {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[path] = true
	dir := filepath.Dir(path)
	if w.dirs[dir] {
		return nil
	}
	if err := w.w.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = true
	return nil
}

// Batches delivers debounced sets of changed files.
func (w *Watcher) Batches() <-chan []string { return w.batches }

// Run pumps events until ctx is done. Events arriving within the debounce
// window are merged into one batch.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.batches)
	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(ev.Name)
			if !w.watching(name) || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			pending[name] = true
			timer.Reset(w.debounce)
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			pending = make(map[string]bool)
			select {
			case w.batches <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (w *Watcher) watching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[path]
}

func (w *Watcher) Close() error { return w.w.Close() }
