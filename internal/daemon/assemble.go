package daemon

import (
	"fmt"
	"log/slog"

	"gncimport/internal/config"
	"gncimport/internal/hotspot"
	"gncimport/internal/pipeline"
	"gncimport/internal/postprocess"
	"gncimport/internal/publish"
	"gncimport/internal/toolrun"
	"gncimport/internal/transform"
	"gncimport/internal/watermark"
)

// NewRegistry returns the postprocessors known to the importer.
func NewRegistry(cfg *config.Config, exec toolrun.Executor, publisher *publish.Publisher, logger *slog.Logger) *postprocess.Registry {
	return postprocess.NewRegistry(
		hotspot.NewExtractor(cfg, exec, publisher, logger),
	)
}

// NewPipelines builds a pipeline for every stream in streams. An empty list
// selects the active streams from cfg.
func NewPipelines(cfg *config.Config, store watermark.Store, exec toolrun.Executor, publisher *publish.Publisher, logger *slog.Logger, streams ...config.Stream) ([]*pipeline.Pipeline, error) {
	if len(streams) == 0 {
		streams = cfg.ActiveStreams()
	}
	registry := NewRegistry(cfg, exec, publisher, logger)
	out := make([]*pipeline.Pipeline, 0, len(streams))
	for _, s := range streams {
		tr, err := transform.New(s.Kind, cfg.Tools, exec, publisher, logger)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", s.Name, err)
		}
		p, err := pipeline.New(cfg, s, store, tr, registry, logger)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", s.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}
