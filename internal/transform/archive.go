package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gncimport/internal/config"
	"gncimport/internal/fileutil"
	"gncimport/internal/logging"
	"gncimport/internal/services"
	"gncimport/internal/staging"
	"gncimport/internal/timecodec"
	"gncimport/internal/toolrun"
)

var shapefileParts = []string{".dbf", ".prj", ".shp", ".shx", ".cpg"}

// Archive converts a tarred shapefile into GeoJSON.
type Archive struct {
	tools     config.Tools
	exec      toolrun.Executor
	publisher Publisher
	logger    *slog.Logger
}

// NewArchive builds an archive transformer.
func NewArchive(tools config.Tools, exec toolrun.Executor, publisher Publisher, logger *slog.Logger) *Archive {
	return &Archive{
		tools:     tools,
		exec:      exec,
		publisher: publisher,
		logger:    logging.NewComponentLogger(logger, "transform"),
	}
}

// Transform unpacks the archive into the working dir, converts the first
// shapefile found and publishes <code>_<stamp>.geojson. The working dir must
// be owned by this stream alone since leftover shapefile parts are cleared
// before unpacking.
func (a *Archive) Transform(ctx context.Context, job Job) (Output, error) {
	logger := logging.WithContext(ctx, a.logger)
	out := Output{Stamp: timecodec.PublishStamp(job.File.CenterTime, job.Stream.BucketMinutes)}

	if err := staging.Prepare(job.WorkDir); err != nil {
		return out, services.Wrap(services.ErrConfiguration, stageName, "working dir", job.WorkDir, err)
	}
	if n, err := staging.ClearByExtension(job.WorkDir, shapefileParts...); err != nil {
		return out, services.Wrap(services.ErrTransient, stageName, "clear working dir", job.WorkDir, err)
	} else if n > 0 {
		logger.Debug("cleared leftover shapefile parts", logging.Int("removed", n))
	}
	defer func() {
		if _, err := staging.ClearByExtension(job.WorkDir, shapefileParts...); err != nil {
			logger.Debug("shapefile parts not removed", logging.Error(err))
		}
	}()

	if _, err := a.exec.Run(ctx, a.tools.Tar, "-xf", job.File.Path, "-C", job.WorkDir); err != nil {
		return out, err
	}
	shp, err := findShapefile(job.WorkDir)
	if err != nil {
		return out, err
	}

	name := fmt.Sprintf("%s_%s.geojson", job.Stream.Code, out.Stamp)
	local := filepath.Join(job.WorkDir, name)
	if err := fileutil.RemoveIfExists(local); err != nil {
		return out, services.Wrap(services.ErrTransient, stageName, "remove previous output", local, err)
	}
	target := job.Stream.Projection.Target
	if target == "" {
		target = "WGS84"
	}
	if _, err := a.exec.Run(ctx, a.tools.Ogr2ogr, local, shp, "-t_srs", target); err != nil {
		_ = fileutil.RemoveIfExists(local)
		return out, err
	}
	dst, err := a.publisher.Publish(ctx, local, name)
	if err != nil {
		_ = fileutil.RemoveIfExists(local)
		return out, err
	}
	out.Published = append(out.Published, dst)
	return out, nil
}

func findShapefile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "list working dir", dir, err)
	}
	var found []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".shp") {
			continue
		}
		found = append(found, e.Name())
	}
	if len(found) == 0 {
		return "", services.Wrap(services.ErrValidation, stageName, "locate shapefile", dir, errors.New("archive contains no .shp file"))
	}
	sort.Strings(found)
	return filepath.Join(dir, found[0]), nil
}
