package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gncimport/internal/config"
)

func TestLoadDefaultsExpandPathsAndStreams(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if resolved != filepath.Join(tempHome, ".config", "gncimport", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if want := filepath.Join(tempHome, ".local", "share", "gncimport", "import"); cfg.Paths.PublishDir != want {
		t.Fatalf("publish dir = %q, want %q", cfg.Paths.PublishDir, want)
	}
	if cfg.Workflow.PollIntervalSeconds != 30 || cfg.Workflow.InitialDelayMillis != 500 {
		t.Fatalf("unexpected workflow defaults %+v", cfg.Workflow)
	}
	if cfg.Logging.RetentionDays != 30 {
		t.Fatalf("retention days = %d", cfg.Logging.RetentionDays)
	}
	if cfg.Watermark.SQLitePath != filepath.Join(cfg.Paths.StateDir, "watermarks.db") {
		t.Fatalf("unexpected sqlite path %q", cfg.Watermark.SQLitePath)
	}
	if len(cfg.Streams) != 3 {
		t.Fatalf("expected 3 default streams, got %d", len(cfg.Streams))
	}
	active := cfg.ActiveStreams()
	if len(active) != 2 || active[0].Name != "cmi" || active[1].Name != "goesr-level2" {
		t.Fatalf("unexpected active streams %+v", active)
	}
	cmi, _ := cfg.StreamByName("cmi")
	if len(cmi.Sources) != 16 {
		t.Fatalf("expected 16 cmi bands, got %d", len(cmi.Sources))
	}
	if cmi.Sources[0].Dir != "Band01" || cmi.Sources[0].Variables[0].Tag != "CMI-01" {
		t.Fatalf("unexpected first band %+v", cmi.Sources[0])
	}
	if got := cfg.StreamSourceDir(cmi); got != "/source/GOES-R-CMI-Imagery" {
		t.Fatalf("unexpected source dir %q", got)
	}
	if len(cfg.Hotspots.Enrichment) != 3 {
		t.Fatalf("expected default enrichment bands, got %+v", cfg.Hotspots.Enrichment)
	}
}

func TestLoadCustomPathReplacesStreams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gncimport.toml")
	content := `
[paths]
source_dir = "` + filepath.Join(dir, "src") + `"
publish_dir = "` + filepath.Join(dir, "out") + `"

[workflow]
poll_interval_seconds = 5

[watermark]
backend = "SQLite"

[[streams]]
name = "fdcf"
source_dir = "L2"
prefix = "OR_ABI-L2-FDCF-"
suffix = ".nc"

  [[streams.sources]]
  tag = "FDCF"
  postprocess = "hotspots"
  variables = [{ name = "DQF" }, { name = "Power", tag = "PWR" }]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Watermark.Backend != config.BackendSQLite {
		t.Fatalf("backend = %q", cfg.Watermark.Backend)
	}
	if len(cfg.Streams) != 1 {
		t.Fatalf("expected declared streams to replace defaults, got %d", len(cfg.Streams))
	}
	s := cfg.Streams[0]
	if s.Code != "fdcf" || s.Kind != config.KindRaster || s.TimeFormat != config.TimeFormatOrdinalSpan || s.BucketMinutes != 10 {
		t.Fatalf("stream defaults not applied: %+v", s)
	}
	if s.Projection.Source != config.DefaultSourceSRS {
		t.Fatalf("projection default not applied: %+v", s.Projection)
	}
	src := s.Sources[0]
	if src.Dir != "FDCF" || src.Variables[0].Tag != "DQF" || src.Variables[1].Tag != "PWR" {
		t.Fatalf("unexpected source normalization %+v", src)
	}
	if got := cfg.StreamSourceDir(s); got != filepath.Join(dir, "src", "L2") {
		t.Fatalf("unexpected source dir %q", got)
	}
	bins := strings.Join(cfg.RequiredBinaries(), ",")
	if bins != "ncpdq,gdalwarp,gdal_translate" {
		t.Fatalf("unexpected required binaries %q", bins)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GNC_SOURCE_DIR", "/mnt/gnc")
	t.Setenv("GNC_LOG_LEVEL", "DEBUG")
	t.Setenv("GNC_OBJECT_STORE_ACCESS_KEY", "ak")
	t.Setenv("GNC_OBJECT_STORE_SECRET_KEY", "sk")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.SourceDir != "/mnt/gnc" {
		t.Fatalf("source dir = %q", cfg.Paths.SourceDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Logging.Level)
	}
	if cfg.ObjectStore.AccessKey != "ak" || cfg.ObjectStore.SecretKey != "sk" {
		t.Fatalf("object store credentials not applied: %+v", cfg.ObjectStore)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[workflow]\nqueue_poll_interval = 5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Hotspots.VectorPrefix != "gnc-goesrlevel2-hotspots" {
		t.Fatalf("unexpected vector prefix %q", cfg.Hotspots.VectorPrefix)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkingDir = filepath.Join(base, "work")
	cfg.Paths.PublishDir = filepath.Join(base, "import")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkingDir, cfg.Paths.PublishDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Streams = config.DefaultStreams()
		return cfg
	}
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"poll interval", func(c *config.Config) { c.Workflow.PollIntervalSeconds = 0 }, "poll_interval_seconds"},
		{"backend", func(c *config.Config) { c.Watermark.Backend = "redis" }, "watermark.backend"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"object store", func(c *config.Config) { c.ObjectStore.Enabled = true; c.ObjectStore.Endpoint = "" }, "object_store.endpoint"},
		{"duplicate stream", func(c *config.Config) { c.Streams[1].Name = "cmi" }, "duplicate stream name"},
		{"stream kind", func(c *config.Config) { c.Streams[0].Kind = "vector" }, "kind"},
		{"no variables", func(c *config.Config) { c.Streams[0].Sources[3].Variables = nil }, "at least one variable"},
		{"duplicate tag", func(c *config.Config) { c.Streams[0].Sources[1].Tag = "1" }, "duplicate source tag"},
		{"unknown postprocess", func(c *config.Config) { c.Streams[1].Sources[0].Postprocess = "smoke" }, "unknown postprocessor"},
		{"reserved property", func(c *config.Config) {
			c.Hotspots.Enrichment = []config.Enrichment{{Variable: "Power", Property: "code"}}
		}, "reserved"},
		{"primary variable", func(c *config.Config) { c.Hotspots.PrimaryVariable = "" }, "primary_variable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
