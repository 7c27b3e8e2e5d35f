package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directory layout shared by every stream.
type Paths struct {
	SourceDir  string `toml:"source_dir"`
	WorkingDir string `toml:"working_dir"`
	PublishDir string `toml:"publish_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// Workflow contains the timing knobs for the per-stream poll loops.
type Workflow struct {
	PollIntervalSeconds int  `toml:"poll_interval_seconds"`
	InitialDelayMillis  int  `toml:"initial_delay_ms"`
	WatchSources        bool `toml:"watch_sources"`
	WatchDebounceMillis int  `toml:"watch_debounce_ms"`
}

// Watermark selects the persistence backend for stream progress cursors.
type Watermark struct {
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Tools names the external binaries and their shared limits.
type Tools struct {
	Ncpdq            string `toml:"ncpdq"`
	Gdalwarp         string `toml:"gdalwarp"`
	GdalTranslate    string `toml:"gdal_translate"`
	Ogr2ogr          string `toml:"ogr2ogr"`
	Tar              string `toml:"tar"`
	OutputLimitBytes int    `toml:"output_limit_bytes"`
	NcpdqThreads     int    `toml:"ncpdq_threads"`
}

// Enrichment maps a raster variable to the feature property it fills.
type Enrichment struct {
	Variable string `toml:"variable"`
	Property string `toml:"property"`
}

// Hotspots configures the fire-detection point extractor.
type Hotspots struct {
	PrimaryVariable string       `toml:"primary_variable"`
	DetectionCode   float64      `toml:"detection_code"`
	NodataTolerance float64      `toml:"nodata_tolerance"`
	VectorPrefix    string       `toml:"vector_prefix"`
	Enrichment      []Enrichment `toml:"enrichment"`
}

// ObjectStore configures the optional S3-compatible mirror of published files.
type ObjectStore struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Variable is one NetCDF variable extracted from a source file. Tag is the
// label used inside the published file name.
type Variable struct {
	Name string `toml:"name"`
	Tag  string `toml:"tag"`
}

// Source is one sub-stream: a directory with its own watermark.
type Source struct {
	Tag         string     `toml:"tag"`
	Dir         string     `toml:"dir"`
	Variables   []Variable `toml:"variables"`
	Postprocess string     `toml:"postprocess"`
}

// Projection holds the gdalwarp source and target SRS definitions.
type Projection struct {
	Source string `toml:"source_srs"`
	Target string `toml:"target_srs"`
}

// Stream describes one independent ingestion loop.
type Stream struct {
	Name                 string     `toml:"name"`
	Code                 string     `toml:"code"`
	Kind                 string     `toml:"kind"`
	Enabled              *bool      `toml:"enabled"`
	SourceDir            string     `toml:"source_dir"`
	Prefix               string     `toml:"prefix"`
	Suffix               string     `toml:"suffix"`
	TimeFormat           string     `toml:"time_format"`
	CalendarOffset       int        `toml:"calendar_offset"`
	BucketMinutes        int        `toml:"bucket_minutes"`
	InitialLookbackHours int        `toml:"initial_lookback_hours"`
	Projection           Projection `toml:"projection"`
	Sources              []Source   `toml:"sources"`
}

// Active reports whether the stream should be started. Streams are enabled
// unless explicitly switched off.
func (s Stream) Active() bool {
	return s.Enabled == nil || *s.Enabled
}

// Config encapsulates all configuration values for gncimport.
//
// Configuration sections by subsystem:
//   - Paths: source, working, publish, state and log directories
//   - Workflow: poll interval, first-run delay and source watching
//   - Watermark: progress cursor backend
//   - Logging: log format, level, and retention
//   - Tools: external binary names and output limits
//   - Hotspots: fire-detection point extraction
//   - ObjectStore: S3-compatible mirror of published artifacts
//   - Streams: one entry per ingestion loop
type Config struct {
	Paths       Paths       `toml:"paths"`
	Workflow    Workflow    `toml:"workflow"`
	Watermark   Watermark   `toml:"watermark"`
	Logging     Logging     `toml:"logging"`
	Tools       Tools       `toml:"tools"`
	Hotspots    Hotspots    `toml:"hotspots"`
	ObjectStore ObjectStore `toml:"object_store"`
	Streams     []Stream    `toml:"streams"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. The bool result reports whether a file was read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the working, publish, state and log directories.
// The source root is owned by the receiver and is never created here.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkingDir, c.Paths.PublishDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ActiveStreams returns the enabled streams in configuration order.
func (c *Config) ActiveStreams() []Stream {
	out := make([]Stream, 0, len(c.Streams))
	for _, s := range c.Streams {
		if s.Active() {
			out = append(out, s)
		}
	}
	return out
}

// StreamByName looks up a configured stream regardless of its enabled flag.
func (c *Config) StreamByName(name string) (Stream, bool) {
	for _, s := range c.Streams {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Stream{}, false
}

// StreamSourceDir returns the absolute source root of a stream.
func (c *Config) StreamSourceDir(s Stream) string {
	if filepath.IsAbs(s.SourceDir) {
		return s.SourceDir
	}
	return filepath.Join(c.Paths.SourceDir, s.SourceDir)
}

// StreamWorkDir returns the per-stream working area.
func (c *Config) StreamWorkDir(s Stream) string {
	return filepath.Join(c.Paths.WorkingDir, s.Name)
}

// RequiredBinaries lists the external tools needed by the active streams.
func (c *Config) RequiredBinaries() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, s := range c.ActiveStreams() {
		switch s.Kind {
		case KindArchive:
			add(c.Tools.Tar)
			add(c.Tools.Ogr2ogr)
		default:
			add(c.Tools.Ncpdq)
			add(c.Tools.Gdalwarp)
			for _, src := range s.Sources {
				if src.Postprocess == PostprocessHotspots {
					add(c.Tools.GdalTranslate)
				}
			}
		}
	}
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
