package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"gncimport/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
	onPath  bool
}

// NewConfig produces a normalized config whose directories all live under a
// per-test temp dir. Streams default to the built-in set.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths = config.Paths{
		SourceDir:  filepath.Join(base, "source"),
		WorkingDir: filepath.Join(base, "work"),
		PublishDir: filepath.Join(base, "import"),
		StateDir:   filepath.Join(base, "state"),
		LogDir:     filepath.Join(base, "logs"),
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Normalize(); err != nil {
		t.Fatalf("normalize config: %v", err)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithStreams replaces the configured streams.
func WithStreams(streams ...config.Stream) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Streams = streams
	}
}

// WithBackend selects the watermark backend.
func WithBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Watermark.Backend = backend
	}
}

// ToolNames lists every external binary the importer may invoke.
var ToolNames = []string{"ncpdq", "gdalwarp", "gdal_translate", "tar", "ogr2ogr"}

// WithStubbedBinaries puts no-op executables for names (default ToolNames)
// first on PATH for the duration of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	if len(names) == 0 {
		names = ToolNames
	}
	return func(b *configBuilder) {
		for _, name := range names {
			b.stub(name, "exit 0")
		}
	}
}

// WithToolScript installs a stub whose body is the given shell script,
// e.g. `cat "$3" > "$4"` for a gdal_translate that copies its input.
func WithToolScript(name, script string) ConfigOption {
	return func(b *configBuilder) {
		b.stub(name, script)
	}
}

func (b *configBuilder) stub(name, script string) {
	binDir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	body := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(filepath.Join(binDir, name), []byte(body), 0o755); err != nil {
		b.t.Fatalf("write stub %s: %v", name, err)
	}
	if !b.onPath {
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
		b.onPath = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
