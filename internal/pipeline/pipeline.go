package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gncimport/internal/config"
	"gncimport/internal/logging"
	"gncimport/internal/postprocess"
	"gncimport/internal/scanner"
	"gncimport/internal/services"
	"gncimport/internal/timecodec"
	"gncimport/internal/transform"
	"gncimport/internal/watermark"
)

// ErrBusy is returned by RunCycle when a cycle is already in progress.
var ErrBusy = errors.New("cycle already running")

// Pipeline is the ingestion loop of a single stream.
type Pipeline struct {
	stream      config.Stream
	sourceRoot  string
	workDir     string
	contract    timecodec.Contract
	sources     []scanner.Source
	sourceByTag map[string]config.Source
	processors  map[string]postprocess.Processor

	store       watermark.Store
	claimer     watermark.Claimer
	transformer transform.Transformer
	logger      *slog.Logger

	initialDelay time.Duration
	pollInterval time.Duration
	now          func() time.Time

	running atomic.Bool

	mu      sync.Mutex
	timer   *time.Timer
	ctx     context.Context
	started bool
	stopped bool
	wg      sync.WaitGroup

	statusMu sync.RWMutex
	status   Status
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithIntervals overrides the initial delay and poll interval from config.
func WithIntervals(initial, poll time.Duration) Option {
	return func(p *Pipeline) {
		p.initialDelay = initial
		p.pollInterval = poll
	}
}

// WithClock replaces time.Now, used for lookback seeding.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New builds the pipeline for stream. Every postprocess identifier named by
// the stream's sources must be registered.
func New(cfg *config.Config, stream config.Stream, store watermark.Store, transformer transform.Transformer, registry *postprocess.Registry, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "watermark store is required", nil)
	}
	if transformer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "transformer is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pipeline{
		stream:     stream,
		sourceRoot: cfg.StreamSourceDir(stream),
		workDir:    cfg.StreamWorkDir(stream),
		contract: timecodec.Contract{
			Prefix:         stream.Prefix,
			Suffix:         stream.Suffix,
			Format:         stream.TimeFormat,
			CalendarOffset: stream.CalendarOffset,
		},
		sourceByTag:  make(map[string]config.Source, len(stream.Sources)),
		processors:   make(map[string]postprocess.Processor),
		store:        store,
		transformer:  transformer,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		initialDelay: time.Duration(cfg.Workflow.InitialDelayMillis) * time.Millisecond,
		pollInterval: time.Duration(cfg.Workflow.PollIntervalSeconds) * time.Second,
		now:          time.Now,
	}
	if c, ok := store.(watermark.Claimer); ok {
		p.claimer = c
	}
	for _, src := range stream.Sources {
		p.sources = append(p.sources, scanner.Source{Tag: src.Tag, Dir: src.Dir})
		p.sourceByTag[src.Tag] = src
		if src.Postprocess == "" {
			continue
		}
		if registry == nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "postprocess", src.Postprocess, postprocess.ErrUnknownProcessor)
		}
		proc, err := registry.Lookup(src.Postprocess)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "postprocess", src.Tag, err)
		}
		p.processors[src.Tag] = proc
	}
	for _, opt := range opts {
		opt(p)
	}
	p.status.Stream = stream.Name
	return p, nil
}

// Name returns the stream name.
func (p *Pipeline) Name() string { return p.stream.Name }

// SourceDirs lists the absolute directory of every sub-stream.
func (p *Pipeline) SourceDirs() []string {
	out := make([]string, 0, len(p.sources))
	for _, src := range p.sources {
		out = append(out, filepath.Join(p.sourceRoot, src.Dir))
	}
	return out
}

// Start schedules the first cycle after the initial delay. Cycles run until
// Stop is called or ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("pipeline already started")
	}
	p.started = true
	p.ctx = ctx
	p.timer = time.AfterFunc(p.initialDelay, p.fire)
	p.setScheduled(true)
	p.streamLogger().Info("stream scheduled",
		logging.Duration("initial_delay", p.initialDelay),
		logging.Duration("poll_interval", p.pollInterval),
		logging.String(logging.FieldEventType, "stream_scheduled"),
	)
	return nil
}

// Trigger runs the next cycle as soon as possible. It is a no-op before
// Start and after Stop.
func (p *Pipeline) Trigger() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.stopped || p.timer == nil {
		return
	}
	p.timer.Reset(0)
}

// Stop disarms the timer and waits for an in-flight cycle to return.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
	p.wg.Wait()
	p.setScheduled(false)
	p.streamLogger().Info("stream stopped", logging.String(logging.FieldEventType, "stream_stopped"))
}

func (p *Pipeline) fire() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	ctx := p.ctx
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	if ctx.Err() != nil {
		return
	}
	if _, err := p.RunCycle(ctx); errors.Is(err, ErrBusy) {
		// The running cycle rearms the timer when it finishes.
		return
	}
	p.rearm()
}

func (p *Pipeline) rearm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.ctx.Err() != nil {
		return
	}
	p.timer.Reset(p.pollInterval)
}

func (p *Pipeline) streamLogger() *slog.Logger {
	return p.logger.With(logging.String(logging.FieldStream, p.stream.Name))
}
