package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateWatermark(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateHotspots(); err != nil {
		return err
	}
	if err := c.validateObjectStore(); err != nil {
		return err
	}
	return c.validateStreams()
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollIntervalSeconds <= 0 {
		return errors.New("workflow.poll_interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWatermark() error {
	switch c.Watermark.Backend {
	case BackendFile, BackendSQLite:
		return nil
	default:
		return fmt.Errorf("watermark.backend: unsupported value %q (want %q or %q)", c.Watermark.Backend, BackendFile, BackendSQLite)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateHotspots() error {
	if !c.usesPostprocess(PostprocessHotspots) {
		return nil
	}
	if c.Hotspots.PrimaryVariable == "" {
		return errors.New("hotspots.primary_variable must be set")
	}
	seen := map[string]struct{}{}
	for _, e := range c.Hotspots.Enrichment {
		if e.Variable == "" {
			return errors.New("hotspots.enrichment entries require a variable")
		}
		if e.Property == "code" {
			return fmt.Errorf("hotspots.enrichment %q: property name %q is reserved", e.Variable, e.Property)
		}
		if _, dup := seen[e.Property]; dup {
			return fmt.Errorf("hotspots.enrichment: duplicate property %q", e.Property)
		}
		seen[e.Property] = struct{}{}
	}
	return nil
}

func (c *Config) validateObjectStore() error {
	if !c.ObjectStore.Enabled {
		return nil
	}
	if c.ObjectStore.Endpoint == "" {
		return errors.New("object_store.endpoint is required when object_store.enabled is true")
	}
	if c.ObjectStore.Bucket == "" {
		return errors.New("object_store.bucket is required when object_store.enabled is true")
	}
	return nil
}

func (c *Config) validateStreams() error {
	names := map[string]struct{}{}
	for i, s := range c.Streams {
		label := fmt.Sprintf("streams[%d]", i)
		if s.Name == "" {
			return fmt.Errorf("%s.name must be set", label)
		}
		label = fmt.Sprintf("streams.%s", s.Name)
		if strings.ContainsAny(s.Name, `/\ `) {
			return fmt.Errorf("%s: name must not contain path separators or spaces", label)
		}
		key := strings.ToLower(s.Name)
		if _, dup := names[key]; dup {
			return fmt.Errorf("%s: duplicate stream name", label)
		}
		names[key] = struct{}{}

		switch s.Kind {
		case KindRaster, KindArchive:
		default:
			return fmt.Errorf("%s.kind: unsupported value %q", label, s.Kind)
		}
		switch s.TimeFormat {
		case TimeFormatOrdinalSpan, TimeFormatCalendar:
		default:
			return fmt.Errorf("%s.time_format: unsupported value %q", label, s.TimeFormat)
		}
		if s.Prefix == "" || s.Suffix == "" {
			return fmt.Errorf("%s: prefix and suffix must be set", label)
		}
		if s.CalendarOffset < 0 {
			return fmt.Errorf("%s.calendar_offset must not be negative", label)
		}
		if s.InitialLookbackHours < 0 {
			return fmt.Errorf("%s.initial_lookback_hours must not be negative", label)
		}
		if len(s.Sources) == 0 {
			return fmt.Errorf("%s: at least one source is required", label)
		}
		if s.Kind == KindArchive && len(s.Sources) != 1 {
			return fmt.Errorf("%s: archive streams take exactly one source", label)
		}
		tags := map[string]struct{}{}
		for _, src := range s.Sources {
			if src.Tag == "" {
				return fmt.Errorf("%s: every source needs a tag", label)
			}
			if _, dup := tags[src.Tag]; dup {
				return fmt.Errorf("%s: duplicate source tag %q", label, src.Tag)
			}
			tags[src.Tag] = struct{}{}
			if s.Kind == KindRaster && len(src.Variables) == 0 {
				return fmt.Errorf("%s.sources.%s: raster sources need at least one variable", label, src.Tag)
			}
			switch src.Postprocess {
			case "", PostprocessHotspots:
			default:
				return fmt.Errorf("%s.sources.%s.postprocess: unknown postprocessor %q", label, src.Tag, src.Postprocess)
			}
			for _, v := range src.Variables {
				if v.Name == "" {
					return fmt.Errorf("%s.sources.%s: variable name must be set", label, src.Tag)
				}
			}
		}
	}
	return nil
}

func (c *Config) usesPostprocess(name string) bool {
	for _, s := range c.ActiveStreams() {
		for _, src := range s.Sources {
			if src.Postprocess == name {
				return true
			}
		}
	}
	return false
}
