package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"gncimport/internal/config"
	"gncimport/internal/daemon"
	"gncimport/internal/deps"
	"gncimport/internal/logging"
	"gncimport/internal/pipeline"
	"gncimport/internal/preflight"
	"gncimport/internal/publish"
	"gncimport/internal/staging"
	"gncimport/internal/toolrun"
	"gncimport/internal/watch"
	"gncimport/internal/watermark"
)

// staleWorkAge is how old a leftover working file must be before startup
// removes it.
const staleWorkAge = 24 * time.Hour

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the importer daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("gncimport-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update gncimport.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "gncimport-*.log", Exclude: []string{logPath}},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, "gncimport.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Open(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open runtime", logging.Error(err))
		return err
	}
	// The daemon owns the backend once created.
	closeStore := true
	defer func() {
		if closeStore {
			_ = rt.Store.Close()
		}
	}()

	logDependencySnapshot(logger, cfg)
	for _, r := range preflight.Failed(preflight.RunAll(signalCtx, cfg, nil)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the directory before files arrive"),
			logging.String(logging.FieldImpact, "affected streams will fail their cycles"),
		)
	}
	for _, stream := range cfg.ActiveStreams() {
		res := staging.CleanStale(signalCtx, cfg.StreamWorkDir(stream), staleWorkAge, logger)
		if len(res.Removed) > 0 {
			logger.Info("stale working files removed",
				logging.String(logging.FieldStream, stream.Name),
				logging.Int("count", len(res.Removed)),
			)
		}
	}

	pipelines, err := daemon.NewPipelines(cfg, rt.Store, rt.Exec, rt.Publisher, logger)
	if err != nil {
		return fmt.Errorf("build pipelines: %w", err)
	}
	var daemonOpts []daemon.Option
	if cfg.Workflow.WatchSources {
		w, err := watch.New(time.Duration(cfg.Workflow.WatchDebounceMillis)*time.Millisecond, logger)
		if err != nil {
			logging.WarnWithContext(logger, "source watcher unavailable", "watch_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check inotify limits"),
				logging.String(logging.FieldImpact, "streams rely on polling only"),
			)
		} else {
			daemonOpts = append(daemonOpts, daemon.WithWatcher(w))
		}
	}

	d, err := daemon.New(cfg, rt.Store, pipelines, logger, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	closeStore = false
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("gncimport daemon shutting down")
	return nil
}

// Runtime bundles the shared collaborators of every pipeline.
type Runtime struct {
	Store     watermark.Backend
	Exec      toolrun.Executor
	Publisher *publish.Publisher
}

// Open prepares the watermark backend, tool runner and publisher. When the
// object store is enabled the bucket is ensured; failures there only disable
// the mirror.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	store, err := watermark.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open watermark store: %w", err)
	}
	var pubOpts []publish.Option
	if cfg.ObjectStore.Enabled {
		if mirror := openMirror(ctx, cfg, logger); mirror != nil {
			pubOpts = append(pubOpts, publish.WithMirror(mirror, cfg.ObjectStore.Prefix))
		}
	}
	return &Runtime{
		Store:     store,
		Exec:      toolrun.New(cfg.Tools.OutputLimitBytes, logger),
		Publisher: publish.New(cfg.Paths.PublishDir, logger, pubOpts...),
	}, nil
}

func openMirror(ctx context.Context, cfg *config.Config, logger *slog.Logger) *publish.MinioMirror {
	mirror, err := publish.NewMinioMirror(cfg.ObjectStore)
	if err == nil {
		if r := preflight.CheckObjectStore(ctx, cfg.ObjectStore, mirror); !r.Passed {
			err = errors.New(r.Detail)
		}
	}
	if err != nil {
		logging.WarnWithContext(logger, "object store mirror disabled", "object_store_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check object_store endpoint and credentials"),
			logging.String(logging.FieldImpact, "artifacts are published locally only"),
		)
		return nil
	}
	return mirror
}

// RunOnce runs a single cycle for each named stream, or every active stream
// when names is empty, and returns the per-stream results.
func RunOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger, names ...string) (map[string]pipeline.CycleResult, error) {
	streams, err := selectStreams(cfg, names)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	rt, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer rt.Store.Close()

	pipelines, err := daemon.NewPipelines(cfg, rt.Store, rt.Exec, rt.Publisher, logger, streams...)
	if err != nil {
		return nil, err
	}
	results := make(map[string]pipeline.CycleResult, len(pipelines))
	for _, p := range pipelines {
		res, err := p.RunCycle(ctx)
		results[p.Name()] = res
		if err != nil {
			return results, fmt.Errorf("stream %s: %w", p.Name(), err)
		}
	}
	return results, nil
}

func selectStreams(cfg *config.Config, names []string) ([]config.Stream, error) {
	if len(names) == 0 {
		return cfg.ActiveStreams(), nil
	}
	out := make([]config.Stream, 0, len(names))
	for _, name := range names {
		s, ok := cfg.StreamByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown stream %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "gncimport.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := preflight.CheckSystemDeps(cfg)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("watermark_backend", cfg.Watermark.Backend),
		logging.Bool("object_store_enabled", cfg.ObjectStore.Enabled),
		logging.Int("active_streams", len(cfg.ActiveStreams())),
	}
	for _, s := range statuses {
		attrs = append(attrs, logging.Bool(s.Name+"_available", s.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	for _, s := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "required tool missing", "dependency_missing",
			logging.String("tool", s.Command),
			logging.String("detail", s.Detail),
			logging.String(logging.FieldErrorHint, "install GDAL, NCO and tar or fix [tools] in config"),
			logging.String(logging.FieldImpact, "streams using this tool fail every file"),
		)
	}
}
