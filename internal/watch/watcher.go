// Package watch reruns a task when execution records or class files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jacoco-filter/pkg/utils"
)

// DefaultDebounce is the quiet period after the last change before a rerun.
const DefaultDebounce = 500 * time.Millisecond

// Handler is called with the changed paths of one debounced batch.
type Handler func(ctx context.Context, changed []string) error

// Options configures a Watcher.
type Options struct {
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration

	// Ignore lists paths whose changes never trigger a rerun, such as the
	// output record.
	Ignore []string

	// Extensions of files inside watched directories that trigger a rerun.
	// Defaults to class files and archives.
	Extensions []string

	Logger utils.Logger
}

var defaultExtensions = []string{".class", ".jar", ".zip", ".war", ".ear"}

// Watcher watches record files and class directories.
type Watcher struct {
	fsw      *fsnotify.Watcher
	files    map[string]bool
	dirs     []string
	ignore   map[string]bool
	exts     []string
	debounce time.Duration
	logger   utils.Logger
}

// New watches each path. Files are watched through their parent directory so
// atomic replacement is seen; directories are watched recursively.
func New(paths []string, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		files:    make(map[string]bool),
		ignore:   make(map[string]bool),
		exts:     opts.Extensions,
		debounce: opts.Debounce,
		logger:   utils.OrNull(opts.Logger),
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if len(w.exts) == 0 {
		w.exts = defaultExtensions
	}
	for _, p := range opts.Ignore {
		if abs, err := filepath.Abs(p); err == nil {
			w.ignore[abs] = true
		}
	}

	for _, p := range paths {
		if err := w.add(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		// A missing record may appear later.
		if os.IsNotExist(err) && filepath.Ext(abs) != "" {
			w.files[abs] = true
			return w.watchDir(filepath.Dir(abs))
		}
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	if !info.IsDir() {
		w.files[abs] = true
		return w.watchDir(filepath.Dir(abs))
	}
	w.dirs = append(w.dirs, abs)
	return w.addRecursive(abs)
}

func (w *Watcher) watchDir(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("Skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.watchDir(path)
	})
}

// relevant reports whether a change to path should trigger a rerun.
func (w *Watcher) relevant(path string) bool {
	if w.ignore[path] {
		return false
	}
	if w.files[path] {
		return true
	}
	if !w.inDirs(path) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.exts {
		if ext == e {
			return true
		}
	}
	return false
}

func (w *Watcher) inDirs(path string) bool {
	for _, d := range w.dirs {
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Run delivers debounced batches of changes to fn until ctx is done. Calls
// to fn never overlap; an error from fn is logged and watching continues.
func (w *Watcher) Run(ctx context.Context, fn Handler) error {
	pending := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && w.inDirs(event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("Failed to watch new directory %s: %v", event.Name, err)
					}
					continue
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}
			w.logger.Debug("Change detected: %s %s", event.Op, event.Name)
			pending[event.Name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watch error: %v", err)

		case <-timerC:
			timer, timerC = nil, nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)

			if err := fn(ctx, changed); err != nil {
				w.logger.Error("Rerun failed: %v", err)
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
