package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"gncimport/internal/config"
	"gncimport/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckObjectStore verifies the mirror bucket is reachable, creating it when
// missing. It uses a 10-second timeout and a single attempt.
func CheckObjectStore(ctx context.Context, cfg config.ObjectStore, mirror BucketChecker) Result {
	const name = "Object store"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mirror.EnsureBucket(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s/%s (error: %v)", cfg.Endpoint, cfg.Bucket, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s/%s (bucket ready)", cfg.Endpoint, cfg.Bucket)}
}

// CheckSystemDeps evaluates the external tools needed by the active streams.
// Both the daemon and the CLI status command use this to avoid duplicating
// the requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	descriptions := map[string]string{
		cfg.Tools.Ncpdq:         "Extracts NetCDF variables",
		cfg.Tools.Gdalwarp:      "Reprojects rasters",
		cfg.Tools.GdalTranslate: "Exports rasters for hotspot extraction",
		cfg.Tools.Tar:           "Unpacks vector archives",
		cfg.Tools.Ogr2ogr:       "Converts shapefiles to GeoJSON",
	}
	var requirements []deps.Requirement
	for _, bin := range cfg.RequiredBinaries() {
		requirements = append(requirements, deps.Requirement{
			Name:        bin,
			Command:     bin,
			Description: descriptions[bin],
		})
	}
	return deps.CheckBinaries(requirements)
}
