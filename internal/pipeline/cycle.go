package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"gncimport/internal/logging"
	"gncimport/internal/postprocess"
	"gncimport/internal/scanner"
	"gncimport/internal/services"
	"gncimport/internal/transform"
	"gncimport/internal/watermark"
)

// CycleResult summarizes one cycle.
type CycleResult struct {
	ID        string
	Processed int
	Failed    int
	Skipped   int
}

// RunCycle processes candidates until none remain. It returns ErrBusy when
// another cycle holds the stream. Transformation and postprocess failures
// are logged and counted; only watermark and scan failures end the cycle
// early with an error. Panics are recovered and reported as errors.
func (p *Pipeline) RunCycle(ctx context.Context) (result CycleResult, err error) {
	if !p.running.CompareAndSwap(false, true) {
		logging.WarnWithContext(p.streamLogger(), "reentrancy detected; cycle skipped", "cycle_reentrancy",
			logging.String(logging.FieldErrorHint, "poll interval shorter than a cycle"),
			logging.String(logging.FieldImpact, "none; the running cycle covers new files"),
		)
		return result, ErrBusy
	}
	defer p.running.Store(false)

	result.ID = uuid.NewString()
	ctx = services.WithStream(ctx, p.stream.Name)
	ctx = services.WithCycleID(ctx, result.ID)
	logger := logging.WithContext(ctx, p.logger)
	started := time.Now()
	p.cycleStarted(result.ID, started)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
		if err != nil && ctx.Err() == nil {
			logging.ErrorWithContext(logger, "cycle aborted", "cycle_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check source and state directories"),
				logging.String(logging.FieldImpact, "stream retries on the next poll"),
			)
		}
		p.cycleFinished(result, err)
		logger.Debug("cycle finished",
			logging.Int("processed", result.Processed),
			logging.Int("failed", result.Failed),
			logging.Int("skipped", result.Skipped),
			logging.Duration("duration", time.Since(started)),
		)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		state, err := p.store.Load(ctx, p.stream.Name)
		if err != nil {
			return result, err
		}
		p.seed(state)

		files, err := scanner.Scan(ctx, p.sourceRoot, p.sources, p.contract, state)
		if err != nil {
			return result, err
		}
		if len(files) == 0 {
			return result, nil
		}
		file := files[0]
		fileCtx := services.WithFile(services.WithTag(ctx, file.Tag), file.Name)
		fileLogger := logging.WithContext(fileCtx, p.logger)

		claimed, err := p.claim(fileCtx, file)
		if err != nil {
			return result, err
		}
		if !claimed {
			logging.WarnWithContext(fileLogger, "file claimed by another worker", "claim_lost",
				logging.Time("center_time", file.CenterTime),
				logging.String(logging.FieldErrorHint, "another importer shares this state directory"),
				logging.String(logging.FieldImpact, "file left to the other worker"),
			)
			result.Skipped++
			continue
		}

		p.process(fileCtx, fileLogger, file, &result)
	}
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, file scanner.SourceFile, result *CycleResult) {
	src := p.sourceByTag[file.Tag]
	job := transform.Job{Stream: p.stream, Source: src, File: file, WorkDir: p.workDir}
	logger.Info("transforming file",
		logging.Time("center_time", file.CenterTime),
		logging.String(logging.FieldEventType, "file_claimed"),
	)
	out, err := p.transformer.Transform(ctx, job)
	if err != nil {
		result.Failed++
		p.recordFile(file.Name, err)
		logging.ErrorWithContext(logger, "transform failed; file skipped", "transform_failed",
			logging.Error(err),
			logging.String("error_class", services.Classify(err)),
			logging.String(logging.FieldErrorHint, "inspect tool stderr in the error"),
			logging.String(logging.FieldImpact, "file will not be retried"),
		)
		return
	}
	result.Processed++
	p.recordFile(file.Name, nil)
	logger.Info("file imported",
		logging.Int("artifacts", len(out.Published)),
		logging.String("stamp", out.Stamp),
		logging.String(logging.FieldEventType, "file_imported"),
	)

	proc, ok := p.processors[file.Tag]
	if !ok || out.Rasters == nil {
		return
	}
	if !postprocess.Ready(proc, out.Rasters) {
		logger.Warn("postprocess skipped; required variables missing",
			logging.String("postprocess", proc.Name()),
			logging.String(logging.FieldEventType, "postprocess_skipped"),
		)
		for _, path := range out.Rasters {
			_ = os.Remove(path)
		}
		return
	}
	in := postprocess.Input{
		Stream:     p.stream.Name,
		Tag:        file.Tag,
		SourceName: file.Name,
		CenterTime: file.CenterTime,
		Stamp:      out.Stamp,
		Rasters:    out.Rasters,
		WorkDir:    p.workDir,
	}
	if err := proc.Process(ctx, in); err != nil {
		logging.ErrorWithContext(logger, "postprocess failed", "postprocess_failed",
			logging.String("postprocess", proc.Name()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check working_dir and tool output"),
			logging.String(logging.FieldImpact, "derived product missing for this time"),
		)
	}
}

// claim advances the file's tag to its center time. Stores without atomic
// claims fall back to reload, compare and save.
func (p *Pipeline) claim(ctx context.Context, file scanner.SourceFile) (bool, error) {
	if p.claimer != nil {
		return p.claimer.Claim(ctx, p.stream.Name, file.Tag, file.CenterTime)
	}
	fresh, err := p.store.Load(ctx, p.stream.Name)
	if err != nil {
		return false, err
	}
	if prev, ok := fresh[file.Tag]; ok && !prev.Before(file.CenterTime) {
		return false, nil
	}
	fresh[file.Tag] = file.CenterTime
	if err := p.store.Save(ctx, p.stream.Name, fresh); err != nil {
		return false, err
	}
	return true, nil
}

// seed applies the lookback window to a stream that has never claimed
// anything on its single cursor.
func (p *Pipeline) seed(state watermark.State) {
	if p.stream.InitialLookbackHours <= 0 {
		return
	}
	if _, ok := state[watermark.TimeTag]; ok {
		return
	}
	if _, ok := p.sourceByTag[watermark.TimeTag]; !ok {
		return
	}
	state[watermark.TimeTag] = p.now().UTC().Add(-time.Duration(p.stream.InitialLookbackHours) * time.Hour)
}

// Pending lists the files the next cycle would process, in processing order,
// without claiming any of them.
func (p *Pipeline) Pending(ctx context.Context) ([]scanner.SourceFile, error) {
	state, err := p.store.Load(ctx, p.stream.Name)
	if err != nil {
		return nil, err
	}
	p.seed(state)
	return scanner.Scan(ctx, p.sourceRoot, p.sources, p.contract, state)
}
