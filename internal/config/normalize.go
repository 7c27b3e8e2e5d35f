package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Normalize applies environment overrides and fills derived defaults. Load
// calls it; configs built in code should call it before Validate.
func (c *Config) Normalize() error {
	return c.normalize()
}

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeWatermark()
	c.normalizeLogging()
	c.normalizeTools()
	c.normalizeHotspots()
	c.normalizeObjectStore()
	c.normalizeStreams()
	return nil
}

func (c *Config) applyEnv() {
	if value, ok := lookupEnv("GNC_SOURCE_DIR"); ok {
		c.Paths.SourceDir = value
	}
	if value, ok := lookupEnv("GNC_LOG_LEVEL"); ok {
		c.Logging.Level = value
	}
	if value, ok := lookupEnv("GNC_OBJECT_STORE_ACCESS_KEY"); ok {
		c.ObjectStore.AccessKey = value
	}
	if value, ok := lookupEnv("GNC_OBJECT_STORE_SECRET_KEY"); ok {
		c.ObjectStore.SecretKey = value
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
		def   string
	}{
		{"paths.source_dir", &c.Paths.SourceDir, defaultSourceDir},
		{"paths.working_dir", &c.Paths.WorkingDir, defaultWorkingDir},
		{"paths.publish_dir", &c.Paths.PublishDir, defaultPublishDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.value) == "" {
			*f.value = f.def
		}
		expanded, err := expandPath(strings.TrimSpace(*f.value))
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = expanded
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.InitialDelayMillis < 0 {
		c.Workflow.InitialDelayMillis = 0
	}
	if c.Workflow.WatchDebounceMillis <= 0 {
		c.Workflow.WatchDebounceMillis = defaultWatchDebounceMs
	}
}

func (c *Config) normalizeWatermark() {
	c.Watermark.Backend = strings.ToLower(strings.TrimSpace(c.Watermark.Backend))
	if c.Watermark.Backend == "" {
		c.Watermark.Backend = BackendFile
	}
	path := strings.TrimSpace(c.Watermark.SQLitePath)
	if path == "" {
		path = filepath.Join(c.Paths.StateDir, "watermarks.db")
	}
	if expanded, err := expandPath(path); err == nil {
		path = expanded
	}
	c.Watermark.SQLitePath = path
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeTools() {
	defaults := Default().Tools
	for _, pair := range []struct {
		value *string
		def   string
	}{
		{&c.Tools.Ncpdq, defaults.Ncpdq},
		{&c.Tools.Gdalwarp, defaults.Gdalwarp},
		{&c.Tools.GdalTranslate, defaults.GdalTranslate},
		{&c.Tools.Ogr2ogr, defaults.Ogr2ogr},
		{&c.Tools.Tar, defaults.Tar},
	} {
		*pair.value = strings.TrimSpace(*pair.value)
		if *pair.value == "" {
			*pair.value = pair.def
		}
	}
	if c.Tools.OutputLimitBytes <= 0 {
		c.Tools.OutputLimitBytes = defaultOutputLimitBytes
	}
	if c.Tools.NcpdqThreads <= 0 {
		c.Tools.NcpdqThreads = defaultNcpdqThreads
	}
}

func (c *Config) normalizeHotspots() {
	c.Hotspots.PrimaryVariable = strings.TrimSpace(c.Hotspots.PrimaryVariable)
	c.Hotspots.VectorPrefix = strings.TrimSpace(c.Hotspots.VectorPrefix)
	if c.Hotspots.VectorPrefix == "" {
		c.Hotspots.VectorPrefix = defaultHotspotPrefix
	}
	if c.Hotspots.NodataTolerance < 0 {
		c.Hotspots.NodataTolerance = -c.Hotspots.NodataTolerance
	}
	if c.Hotspots.Enrichment == nil {
		c.Hotspots.Enrichment = defaultEnrichment()
	}
	for i := range c.Hotspots.Enrichment {
		e := &c.Hotspots.Enrichment[i]
		e.Variable = strings.TrimSpace(e.Variable)
		e.Property = strings.TrimSpace(e.Property)
		if e.Property == "" {
			e.Property = strings.ToLower(e.Variable)
		}
	}
}

func (c *Config) normalizeObjectStore() {
	c.ObjectStore.Endpoint = strings.TrimSpace(c.ObjectStore.Endpoint)
	c.ObjectStore.Bucket = strings.TrimSpace(c.ObjectStore.Bucket)
	c.ObjectStore.Prefix = strings.Trim(strings.TrimSpace(c.ObjectStore.Prefix), "/")
}

func (c *Config) normalizeStreams() {
	if len(c.Streams) == 0 {
		c.Streams = DefaultStreams()
	}
	for i := range c.Streams {
		s := &c.Streams[i]
		s.Name = strings.TrimSpace(s.Name)
		s.Code = strings.TrimSpace(s.Code)
		if s.Code == "" {
			s.Code = s.Name
		}
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.Kind == "" {
			s.Kind = KindRaster
		}
		s.TimeFormat = strings.ToLower(strings.TrimSpace(s.TimeFormat))
		if s.TimeFormat == "" {
			if s.Kind == KindArchive {
				s.TimeFormat = TimeFormatCalendar
			} else {
				s.TimeFormat = TimeFormatOrdinalSpan
			}
		}
		if s.TimeFormat == TimeFormatCalendar && s.CalendarOffset == 0 {
			s.CalendarOffset = len(s.Prefix)
		}
		if s.BucketMinutes <= 0 {
			if s.Kind == KindArchive {
				s.BucketMinutes = defaultArchiveBucket
			} else {
				s.BucketMinutes = defaultRasterBucket
			}
		}
		if s.Kind == KindRaster {
			if strings.TrimSpace(s.Projection.Source) == "" {
				s.Projection.Source = DefaultSourceSRS
			}
			if strings.TrimSpace(s.Projection.Target) == "" {
				s.Projection.Target = DefaultTargetSRS
			}
		}
		if s.Kind == KindArchive && len(s.Sources) == 0 {
			s.Sources = []Source{{Tag: "time", Dir: "."}}
		}
		for j := range s.Sources {
			src := &s.Sources[j]
			src.Tag = strings.TrimSpace(src.Tag)
			src.Dir = strings.TrimSpace(src.Dir)
			if src.Dir == "" {
				src.Dir = src.Tag
			}
			src.Postprocess = strings.ToLower(strings.TrimSpace(src.Postprocess))
			for k := range src.Variables {
				v := &src.Variables[k]
				v.Name = strings.TrimSpace(v.Name)
				v.Tag = strings.TrimSpace(v.Tag)
				if v.Tag == "" {
					v.Tag = v.Name
				}
			}
		}
	}
}
