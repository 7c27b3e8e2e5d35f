package transform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gncimport/internal/config"
	"gncimport/internal/fileutil"
	"gncimport/internal/logging"
	"gncimport/internal/services"
	"gncimport/internal/timecodec"
	"gncimport/internal/toolrun"
)

// Raster extracts and reprojects NetCDF variables.
type Raster struct {
	tools     config.Tools
	exec      toolrun.Executor
	publisher Publisher
	logger    *slog.Logger
}

// NewRaster builds a raster transformer.
func NewRaster(tools config.Tools, exec toolrun.Executor, publisher Publisher, logger *slog.Logger) *Raster {
	return &Raster{
		tools:     tools,
		exec:      exec,
		publisher: publisher,
		logger:    logging.NewComponentLogger(logger, "transform"),
	}
}

// PublishedName returns <code>_[<tag>]<stamp>.nc.
func PublishedName(code, tag, stamp string) string {
	return fmt.Sprintf("%s_[%s]%s.nc", code, tag, stamp)
}

// Transform processes every variable of the job's source. The first tool
// failure aborts the file; copies kept for the postprocessor are removed in
// that case.
func (r *Raster) Transform(ctx context.Context, job Job) (Output, error) {
	logger := logging.WithContext(ctx, r.logger)
	out := Output{Stamp: timecodec.PublishStamp(job.File.CenterTime, job.Stream.BucketMinutes)}

	if err := os.MkdirAll(job.WorkDir, 0o755); err != nil {
		return out, services.Wrap(services.ErrConfiguration, stageName, "working dir", job.WorkDir, err)
	}
	var ppDir string
	if job.Source.Postprocess != "" {
		ppDir = filepath.Join(job.WorkDir, job.Source.Postprocess)
		if err := os.MkdirAll(ppDir, 0o755); err != nil {
			return out, services.Wrap(services.ErrConfiguration, stageName, "postprocess dir", ppDir, err)
		}
		out.Rasters = make(map[string]string, len(job.Source.Variables))
	}

	unpacked := filepath.Join(job.WorkDir, job.File.Name)
	defer func() {
		if err := fileutil.RemoveIfExists(unpacked); err != nil {
			logger.Debug("unpacked raster not removed", logging.String("path", unpacked), logging.Error(err))
		}
	}()

	for _, v := range job.Source.Variables {
		name := PublishedName(job.Stream.Code, v.Tag, out.Stamp)
		warped := filepath.Join(job.WorkDir, name)
		if err := r.extract(ctx, job.File.Path, unpacked, v.Name); err != nil {
			r.discard(logger, out.Rasters)
			out.Rasters = nil
			return out, err
		}
		if err := r.warp(ctx, job.Stream.Projection, unpacked, v.Name, warped); err != nil {
			_ = fileutil.RemoveIfExists(warped)
			r.discard(logger, out.Rasters)
			out.Rasters = nil
			return out, err
		}
		if ppDir != "" {
			keep := filepath.Join(ppDir, fmt.Sprintf("%s_%s.nc", v.Tag, out.Stamp))
			if err := fileutil.CopyFile(warped, keep); err != nil {
				_ = fileutil.RemoveIfExists(warped)
				r.discard(logger, out.Rasters)
				out.Rasters = nil
				return out, services.Wrap(services.ErrTransient, stageName, "postprocess copy", keep, err)
			}
			out.Rasters[v.Name] = keep
		}
		dst, err := r.publisher.Publish(ctx, warped, name)
		if err != nil {
			_ = fileutil.RemoveIfExists(warped)
			r.discard(logger, out.Rasters)
			out.Rasters = nil
			return out, err
		}
		out.Published = append(out.Published, dst)
		logger.Debug("variable reprojected",
			logging.String("variable", v.Name),
			logging.String("artifact", name),
		)
	}
	return out, nil
}

func (r *Raster) extract(ctx context.Context, src, dst, variable string) error {
	threads := r.tools.NcpdqThreads
	if threads <= 0 {
		threads = 1
	}
	_, err := r.exec.Run(ctx, r.tools.Ncpdq,
		"-O",
		"--omp_num_threads", strconv.Itoa(threads),
		"-U",
		"-v", variable,
		src, dst,
	)
	return err
}

func (r *Raster) warp(ctx context.Context, proj config.Projection, unpacked, variable, dst string) error {
	_, err := r.exec.Run(ctx, r.tools.Gdalwarp,
		"-multi",
		"-s_srs", proj.Source,
		fmt.Sprintf("NETCDF:%q:%s", unpacked, variable),
		"-t_srs", proj.Target,
		"-overwrite",
		dst,
	)
	return err
}

func (r *Raster) discard(logger *slog.Logger, rasters map[string]string) {
	for _, path := range rasters {
		if err := fileutil.RemoveIfExists(path); err != nil {
			logger.Debug("postprocess copy not removed", logging.String("path", path), logging.Error(err))
		}
	}
}
