package toolrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"gncimport/internal/logging"
	"gncimport/internal/services"
)

// DefaultOutputLimit bounds each captured stream.
const DefaultOutputLimit = 1024 * 1024

var commandContext = exec.CommandContext

// Result is the captured outcome of a successful invocation.
type Result struct {
	Stdout    string
	Stderr    string
	Warning   bool
	Truncated bool
	Duration  time.Duration
}

// Executor runs one external command.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// Runner is the exec-backed Executor.
type Runner struct {
	limit  int
	logger *slog.Logger
}

// New returns a Runner capturing at most limit bytes per stream.
func New(limit int, logger *slog.Logger) *Runner {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	return &Runner{limit: limit, logger: logging.NewComponentLogger(logger, "toolrun")}
}

// Run executes name with args and blocks until it exits. The context is only
// used to kill the process on shutdown.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	logger := logging.WithContext(ctx, r.logger)
	logger.Debug("running tool", logging.String("command", CommandLine(name, args...)))

	stdout := newBoundedBuffer(r.limit)
	stderr := newBoundedBuffer(r.limit)
	cmd := commandContext(ctx, name, args...) //nolint:gosec
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:    stdout.String(),
		Stderr:    strings.TrimSpace(stderr.String()),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(started),
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("%s interrupted: %w", name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := fmt.Sprintf("exit status %d", exitErr.ExitCode())
			if res.Stderr != "" {
				msg += ": " + res.Stderr
			}
			return res, services.Wrap(services.ErrExternalTool, "toolrun", name, msg, err)
		}
		return res, services.Wrap(services.ErrExternalTool, "toolrun", name, "start failed", err)
	}

	if res.Stderr != "" {
		res.Warning = true
		logging.WarnWithContext(logger, "tool reported on stderr", "tool_stderr",
			logging.String("tool", name),
			logging.String("stderr", res.Stderr),
			logging.String(logging.FieldErrorHint, "review the tool message; the output was kept"),
			logging.String(logging.FieldImpact, "none unless the message describes data loss"),
		)
	}
	logger.Debug("tool finished",
		logging.String("tool", name),
		logging.Duration("duration", res.Duration),
		logging.Bool("truncated", res.Truncated),
	)
	return res, nil
}

// CommandLine renders a command for logs, quoting arguments with spaces.
func CommandLine(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

type boundedBuffer struct {
	buf       []byte
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

// Write keeps the first limit bytes and reports the rest as consumed so the
// child never blocks on a full pipe.
func (b *boundedBuffer) Write(p []byte) (int, error) {
	room := b.limit - len(b.buf)
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *boundedBuffer) String() string { return string(b.buf) }
