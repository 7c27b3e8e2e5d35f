package preflight

import (
	"context"

	"gncimport/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// BucketChecker is implemented by publish.MinioMirror.
type BucketChecker interface {
	EnsureBucket(ctx context.Context) error
}

// RunAll executes the directory checks for cfg. The object store is checked
// when mirror is non-nil.
func RunAll(ctx context.Context, cfg *config.Config, mirror BucketChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckReadableDirectory("Source directory", cfg.Paths.SourceDir),
		CheckDirectoryAccess("Working directory", cfg.Paths.WorkingDir),
		CheckDirectoryAccess("Publish directory", cfg.Paths.PublishDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if mirror != nil {
		results = append(results, CheckObjectStore(ctx, cfg.ObjectStore, mirror))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
