package transform

import (
	"context"
	"fmt"
	"log/slog"

	"gncimport/internal/config"
	"gncimport/internal/scanner"
	"gncimport/internal/toolrun"
)

const stageName = "transform"

// Publisher places a finished artifact in the import directory.
type Publisher interface {
	Publish(ctx context.Context, src, name string) (string, error)
}

// Job is one source file with the stream context needed to process it.
type Job struct {
	Stream  config.Stream
	Source  config.Source
	File    scanner.SourceFile
	WorkDir string
}

// Output reports what a transformation produced.
type Output struct {
	Stamp     string
	Published []string
	// Rasters maps variable name to the copy kept for the source's
	// postprocessor. Empty when the source has none.
	Rasters map[string]string
}

// Transformer processes one job.
type Transformer interface {
	Transform(ctx context.Context, job Job) (Output, error)
}

// New returns the transformer matching the stream kind.
func New(kind string, tools config.Tools, exec toolrun.Executor, publisher Publisher, logger *slog.Logger) (Transformer, error) {
	switch kind {
	case config.KindRaster, "":
		return NewRaster(tools, exec, publisher, logger), nil
	case config.KindArchive:
		return NewArchive(tools, exec, publisher, logger), nil
	default:
		return nil, fmt.Errorf("unsupported stream kind %q", kind)
	}
}
