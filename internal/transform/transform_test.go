package transform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gncimport/internal/config"
	"gncimport/internal/logging"
	"gncimport/internal/publish"
	"gncimport/internal/scanner"
	"gncimport/internal/services"
	"gncimport/internal/toolrun"
)

// fakeTools imitates the external binaries by creating their output files.
type fakeTools struct {
	calls  [][]string
	failOn string
	shp    []string
}

func (f *fakeTools) Run(_ context.Context, name string, args ...string) (toolrun.Result, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	line := strings.Join(append([]string{name}, args...), " ")
	if f.failOn != "" && strings.Contains(line, f.failOn) {
		return toolrun.Result{}, services.Wrap(services.ErrExternalTool, "toolrun", name, "exit status 1", nil)
	}
	switch name {
	case "ncpdq", "gdalwarp":
		return toolrun.Result{}, os.WriteFile(args[len(args)-1], []byte(name), 0o644)
	case "tar":
		dir := args[len(args)-1]
		for _, part := range f.shp {
			if err := os.WriteFile(filepath.Join(dir, part), []byte("shape"), 0o644); err != nil {
				return toolrun.Result{}, err
			}
		}
		return toolrun.Result{}, nil
	case "ogr2ogr":
		return toolrun.Result{}, os.WriteFile(args[0], []byte(`{"type":"FeatureCollection","features":[]}`), 0o644)
	}
	return toolrun.Result{}, errors.New("unexpected tool " + name)
}

func (f *fakeTools) count(name string) int {
	n := 0
	for _, c := range f.calls {
		if c[0] == name {
			n++
		}
	}
	return n
}

func level2Job(t *testing.T) (Job, string) {
	t.Helper()
	srcDir := t.TempDir()
	name := "OR_ABI-L2-FDCF-M6_G16_s20212451910205_e20212451919513_c20212451920010.nc"
	path := filepath.Join(srcDir, name)
	if err := os.WriteFile(path, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	var stream config.Stream
	for _, s := range config.DefaultStreams() {
		if s.Name == "goesr-level2" {
			stream = s
		}
	}
	return Job{
		Stream: stream,
		Source: stream.Sources[0],
		File: scanner.SourceFile{
			Path:       path,
			Name:       name,
			CenterTime: time.Date(2021, 9, 2, 19, 14, 51, 0, time.UTC),
			Tag:        "FDCF",
		},
		WorkDir: filepath.Join(t.TempDir(), "goesr-level2"),
	}, srcDir
}

func TestRasterPublishesEveryVariable(t *testing.T) {
	job, _ := level2Job(t)
	tools := &fakeTools{}
	pubDir := t.TempDir()
	r := NewRaster(config.Default().Tools, tools, publish.New(pubDir, logging.NewNop()), logging.NewNop())

	out, err := r.Transform(context.Background(), job)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Stamp != "2021-09-02_19-10" {
		t.Fatalf("stamp = %q", out.Stamp)
	}
	if len(out.Published) != 4 || tools.count("ncpdq") != 4 || tools.count("gdalwarp") != 4 {
		t.Fatalf("unexpected output %+v calls %v", out, tools.calls)
	}
	want := filepath.Join(pubDir, "gnc-goesrlevel2_[DQF]2021-09-02_19-10.nc")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected %s: %v", want, err)
	}

	first := tools.calls[0]
	if strings.Join(first[:6], " ") != "ncpdq -O --omp_num_threads 4 -U -v" || first[6] != "DQF" {
		t.Fatalf("unexpected ncpdq call %v", first)
	}
	warp := tools.calls[1]
	if warp[1] != "-multi" || warp[3] != config.DefaultSourceSRS || !strings.HasPrefix(warp[4], "NETCDF:") || !strings.HasSuffix(warp[4], ":DQF") {
		t.Fatalf("unexpected gdalwarp call %v", warp)
	}

	if len(out.Rasters) != 4 {
		t.Fatalf("expected postprocess copies for every variable, got %v", out.Rasters)
	}
	if got := out.Rasters["Power"]; got != filepath.Join(job.WorkDir, "hotspots", "Power_2021-09-02_19-10.nc") {
		t.Fatalf("unexpected postprocess copy %q", got)
	}
	if _, err := os.Stat(filepath.Join(job.WorkDir, job.File.Name)); !os.IsNotExist(err) {
		t.Fatalf("unpacked raster should be removed, stat err = %v", err)
	}
}

func TestRasterToolFailureAbortsFile(t *testing.T) {
	job, _ := level2Job(t)
	tools := &fakeTools{failOn: ":Temp"}
	pubDir := t.TempDir()
	r := NewRaster(config.Default().Tools, tools, publish.New(pubDir, logging.NewNop()), logging.NewNop())

	out, err := r.Transform(context.Background(), job)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected tool error, got %v", err)
	}
	if out.Rasters != nil {
		t.Fatalf("postprocess copies must be discarded, got %v", out.Rasters)
	}
	if tools.count("ncpdq") != 3 {
		t.Fatalf("Area must not be attempted after Temp fails, calls %v", tools.calls)
	}
	entries, _ := os.ReadDir(filepath.Join(job.WorkDir, "hotspots"))
	if len(entries) != 0 {
		t.Fatalf("postprocess dir should be empty, found %d entries", len(entries))
	}
}

func TestRasterWithoutPostprocess(t *testing.T) {
	job, _ := level2Job(t)
	job.Source.Postprocess = ""
	job.Source.Variables = job.Source.Variables[:1]
	r := NewRaster(config.Default().Tools, &fakeTools{}, publish.New(t.TempDir(), logging.NewNop()), logging.NewNop())
	out, err := r.Transform(context.Background(), job)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Rasters != nil || len(out.Published) != 1 {
		t.Fatalf("unexpected output %+v", out)
	}
}

func archiveJob(t *testing.T) Job {
	t.Helper()
	var stream config.Stream
	for _, s := range config.DefaultStreams() {
		if s.Name == "inpe" {
			stream = s
		}
	}
	src := filepath.Join(t.TempDir(), "INPE_MVF_202109021900.tar.gz")
	if err := os.WriteFile(src, []byte("tar"), 0o644); err != nil {
		t.Fatal(err)
	}
	return Job{
		Stream:  stream,
		Source:  stream.Sources[0],
		File:    scanner.SourceFile{Path: src, Name: filepath.Base(src), CenterTime: time.Date(2021, 9, 2, 19, 0, 0, 0, time.UTC), Tag: "time"},
		WorkDir: filepath.Join(t.TempDir(), "inpe"),
	}
}

func TestArchiveConvertsShapefile(t *testing.T) {
	job := archiveJob(t)
	if err := os.MkdirAll(job.WorkDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(job.WorkDir, "old.shp")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	tools := &fakeTools{shp: []string{"focos.dbf", "focos.shp", "focos.shx", "focos.prj"}}
	pubDir := t.TempDir()
	a := NewArchive(config.Default().Tools, tools, publish.New(pubDir, logging.NewNop()), logging.NewNop())

	out, err := a.Transform(context.Background(), job)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	want := filepath.Join(pubDir, "gnc-subp-inpe_inpe_2021-09-02_19-00.geojson")
	if len(out.Published) != 1 || out.Published[0] != want {
		t.Fatalf("unexpected published %v", out.Published)
	}
	ogr := tools.calls[len(tools.calls)-1]
	if ogr[0] != "ogr2ogr" || filepath.Base(ogr[2]) != "focos.shp" || ogr[4] != "WGS84" {
		t.Fatalf("unexpected ogr2ogr call %v", ogr)
	}
	entries, _ := os.ReadDir(job.WorkDir)
	if len(entries) != 0 {
		t.Fatalf("working dir should be cleared, found %d entries", len(entries))
	}
}

func TestArchiveWithoutShapefile(t *testing.T) {
	job := archiveJob(t)
	a := NewArchive(config.Default().Tools, &fakeTools{}, publish.New(t.TempDir(), logging.NewNop()), logging.NewNop())
	if _, err := a.Transform(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewSelectsByKind(t *testing.T) {
	tools := config.Default().Tools
	if tr, err := New(config.KindArchive, tools, &fakeTools{}, nil, logging.NewNop()); err != nil {
		t.Fatal(err)
	} else if _, ok := tr.(*Archive); !ok {
		t.Fatalf("expected archive transformer, got %T", tr)
	}
	if _, err := New("bogus", tools, &fakeTools{}, nil, logging.NewNop()); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
