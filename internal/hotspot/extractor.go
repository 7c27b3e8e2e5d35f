package hotspot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gncimport/internal/config"
	"gncimport/internal/fileutil"
	"gncimport/internal/logging"
	"gncimport/internal/postprocess"
	"gncimport/internal/services"
	"gncimport/internal/toolrun"
)

// Name is the postprocess identifier of the extractor.
const Name = config.PostprocessHotspots

// Publisher places the finished vector artifact.
type Publisher interface {
	Publish(ctx context.Context, src, name string) (string, error)
}

// Extractor implements postprocess.Processor for fire detection products.
type Extractor struct {
	settings  config.Hotspots
	translate string
	exec      toolrun.Executor
	publisher Publisher
	logger    *slog.Logger
}

// NewExtractor wires the extractor to a tool executor and publisher.
func NewExtractor(cfg *config.Config, exec toolrun.Executor, publisher Publisher, logger *slog.Logger) *Extractor {
	return &Extractor{
		settings:  cfg.Hotspots,
		translate: cfg.Tools.GdalTranslate,
		exec:      exec,
		publisher: publisher,
		logger:    logging.NewComponentLogger(logger, "hotspot"),
	}
}

// Name implements postprocess.Processor.
func (e *Extractor) Name() string { return Name }

// Required lists the primary variable followed by the enrichment variables.
func (e *Extractor) Required() []string {
	out := []string{e.settings.PrimaryVariable}
	for _, en := range e.settings.Enrichment {
		out = append(out, en.Variable)
	}
	return out
}

// Process exports every band, correlates them and publishes
// <vector_prefix>_<stamp>.geojson. Rasters and every export by-product are
// removed whether or not extraction succeeds.
func (e *Extractor) Process(ctx context.Context, in postprocess.Input) error {
	ctx = services.WithStage(ctx, Name)
	logger := logging.WithContext(ctx, e.logger)

	var dumps []string
	defer func() {
		e.cleanup(logger, in.Rasters, dumps)
	}()

	primary, ok := in.Rasters[e.settings.PrimaryVariable]
	if !ok {
		return services.Wrap(services.ErrValidation, Name, "primary band", fmt.Sprintf("no raster for %s", e.settings.PrimaryVariable), nil)
	}
	asc, err := e.export(ctx, primary)
	dumps = append(dumps, asc)
	if err != nil {
		return err
	}
	set, err := readPrimary(asc, e.settings.DetectionCode, e.settings.NodataTolerance)
	if err != nil {
		return services.Wrap(services.ErrValidation, Name, "parse", e.settings.PrimaryVariable, err)
	}

	for _, en := range e.settings.Enrichment {
		raster, ok := in.Rasters[en.Variable]
		if !ok {
			logger.Debug("enrichment band not produced", logging.String("variable", en.Variable))
			continue
		}
		asc, err := e.export(ctx, raster)
		dumps = append(dumps, asc)
		if err != nil {
			return err
		}
		n, err := enrichFrom(set, asc, en.Property)
		if err != nil {
			return services.Wrap(services.ErrValidation, Name, "parse", en.Variable, err)
		}
		logger.Debug("enrichment applied",
			logging.String("variable", en.Variable),
			logging.Int("matched", n),
		)
	}

	name := fmt.Sprintf("%s_%s.geojson", e.settings.VectorPrefix, in.Stamp)
	data, err := FeatureCollection(set.Points()).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode hotspots: %w", err)
	}
	local := filepath.Join(in.WorkDir, name)
	if err := fileutil.WriteFileAtomic(local, data, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, Name, "write", local, err)
	}
	if _, err := e.publisher.Publish(ctx, local, name); err != nil {
		_ = fileutil.RemoveIfExists(local)
		return err
	}
	logger.Info("hotspots extracted",
		logging.String("artifact", name),
		logging.Int("hotpoints", set.Len()),
		logging.String(logging.FieldEventType, "hotspots_extracted"),
	)
	return nil
}

func (e *Extractor) export(ctx context.Context, raster string) (string, error) {
	asc := raster + ".asc"
	if _, err := e.exec.Run(ctx, e.translate, "-of", "AAIGrid", raster, asc); err != nil {
		return asc, err
	}
	return asc, nil
}

func (e *Extractor) cleanup(logger *slog.Logger, rasters map[string]string, dumps []string) {
	var paths []string
	for _, r := range rasters {
		paths = append(paths, r, r+".aux.xml")
	}
	for _, d := range dumps {
		paths = append(paths, d, d+".aux.xml", strings.TrimSuffix(d, ".asc")+".prj")
	}
	for _, p := range paths {
		if err := fileutil.RemoveIfExists(p); err != nil {
			logging.WarnWithContext(logger, "intermediate not removed", "hotspot_cleanup_failed",
				logging.String("path", p),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check working_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
	}
}

func readPrimary(path string, code, tolerance float64) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Detect(f, code, tolerance)
}

func enrichFrom(set *Set, path, property string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return set.Enrich(f, property)
}
