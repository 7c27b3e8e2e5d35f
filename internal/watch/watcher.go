package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gncimport/internal/logging"
)

// DefaultDebounce is the quiet period before a trigger fires.
const DefaultDebounce = 2 * time.Second

// Triggerer is implemented by pipeline.Pipeline.
type Triggerer interface {
	Trigger()
}

// Watcher maps watched directories to the pipelines that consume them.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	targets map[string]string
	streams map[string]Triggerer
	timers  map[string]*time.Timer
	closed  bool
}

// New creates a watcher. A non-positive debounce uses DefaultDebounce.
func New(debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fs:       fw,
		debounce: debounce,
		logger:   logging.NewComponentLogger(logger, "watch"),
		targets:  make(map[string]string),
		streams:  make(map[string]Triggerer),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Add watches dirs on behalf of stream. Directories that do not exist yet
// are skipped. It returns how many directories are now watched.
func (w *Watcher) Add(stream string, dirs []string, t Triggerer) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, errors.New("watcher closed")
	}
	w.streams[stream] = t
	added := 0
	for _, dir := range dirs {
		dir = filepath.Clean(dir)
		info, err := os.Stat(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				w.logger.Debug("source directory missing; not watched",
					logging.String(logging.FieldStream, stream),
					logging.String("dir", dir),
				)
				continue
			}
			return added, fmt.Errorf("stat %s: %w", dir, err)
		}
		if !info.IsDir() {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			return added, fmt.Errorf("watch %s: %w", dir, err)
		}
		w.targets[dir] = stream
		added++
	}
	return added, nil
}

// Run dispatches events until ctx is cancelled, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "filesystem watch error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_watches if events overflow"),
				logging.String(logging.FieldImpact, "new files picked up on the next poll instead"),
			)
		}
	}
}

// Close stops all pending triggers and the underlying watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	return w.fs.Close()
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !relevant(ev) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	stream, ok := w.targets[filepath.Dir(ev.Name)]
	if !ok {
		return
	}
	if t, ok := w.timers[stream]; ok {
		t.Reset(w.debounce)
		return
	}
	target := w.streams[stream]
	w.timers[stream] = time.AfterFunc(w.debounce, func() {
		w.logger.Debug("source activity settled; triggering cycle", logging.String(logging.FieldStream, stream))
		target.Trigger()
	})
}

func relevant(ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Write)
}
