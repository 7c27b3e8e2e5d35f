package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"gncimport/internal/config"
	"gncimport/internal/logging"
	"gncimport/internal/pipeline"
	"gncimport/internal/watch"
	"gncimport/internal/watermark"
)

// LockFileName is created in the state directory while a daemon runs.
const LockFileName = "gncimport.lock"

// Daemon runs every stream pipeline and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     watermark.Backend
	pipelines []*pipeline.Pipeline
	watcher   *watch.Watcher

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	LockFilePath string
	Backend      string
	Streams      []pipeline.Status
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithWatcher nudges pipelines from filesystem events.
func WithWatcher(w *watch.Watcher) Option {
	return func(d *Daemon) {
		d.watcher = w
	}
}

// New constructs a daemon around already built pipelines.
func New(cfg *config.Config, store watermark.Backend, pipelines []*pipeline.Pipeline, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and watermark store")
	}
	lockPath := filepath.Join(cfg.Paths.StateDir, LockFileName)
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		pipelines: pipelines,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock and schedules every pipeline.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gncimport daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	for i, p := range d.pipelines {
		if err := p.Start(runCtx); err != nil {
			for _, started := range d.pipelines[:i] {
				started.Stop()
			}
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start stream %s: %w", p.Name(), err)
		}
	}
	if d.watcher != nil {
		d.watchSources()
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.watcher.Run(runCtx); err != nil {
				d.logger.Warn("source watcher stopped", logging.Error(err))
			}
		}()
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("gncimport daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("streams", len(d.pipelines)),
		logging.Bool("watch_sources", d.watcher != nil),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) watchSources() {
	for _, p := range d.pipelines {
		n, err := d.watcher.Add(p.Name(), p.SourceDirs(), p)
		if err != nil {
			logging.WarnWithContext(d.logger, "source directories not watched", "watch_add_failed",
				logging.String(logging.FieldStream, p.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check source_dir permissions"),
				logging.String(logging.FieldImpact, "stream relies on polling only"),
			)
			continue
		}
		d.logger.Debug("watching source directories",
			logging.String(logging.FieldStream, p.Name()),
			logging.Int("dirs", n),
		)
	}
}

// Stop stops every pipeline, waits for in-flight cycles and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	for _, p := range d.pipelines {
		p.Stop()
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("gncimport daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the watermark backend.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Trigger pulls the next cycle forward for the named stream, or for every
// stream when name is empty.
func (d *Daemon) Trigger(name string) error {
	found := false
	for _, p := range d.pipelines {
		if name == "" || strings.EqualFold(p.Name(), name) {
			p.Trigger()
			found = true
		}
	}
	if !found {
		return fmt.Errorf("stream %q is not running", name)
	}
	return nil
}

// LockPath returns the path of the single-instance lock file.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	streams := make([]pipeline.Status, 0, len(d.pipelines))
	for _, p := range d.pipelines {
		streams = append(streams, p.Status())
	}
	return Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		Backend:      d.cfg.Watermark.Backend,
		Streams:      streams,
	}
}
