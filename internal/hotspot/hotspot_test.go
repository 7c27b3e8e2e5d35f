package hotspot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"gncimport/internal/config"
	"gncimport/internal/logging"
	"gncimport/internal/postprocess"
	"gncimport/internal/publish"
	"gncimport/internal/services"
	"gncimport/internal/toolrun"
)

func TestReadGridHeaderVariants(t *testing.T) {
	input := "NCOLS 2\nNROWS 2\nXLLCENTER -50.5\nYLLCENTER -20\nDX 0.5\nDY 0.25\nnodata_value -99\n1 2\n3\n4\n"
	var values []float64
	h, err := ReadGrid(strings.NewReader(input), func(r, c int, v float64) { values = append(values, v) })
	if err != nil {
		t.Fatalf("ReadGrid: %v", err)
	}
	if h.Cols != 2 || h.Rows != 2 || h.XLL != -50.5 || h.YLL != -20 || h.CellSize != 0.5 || h.CellSizeY != 0.25 || !h.HasNoData || h.NoData != -99 {
		t.Fatalf("unexpected header %+v", h)
	}
	if len(values) != 4 || values[3] != 4 {
		t.Fatalf("unexpected values %v", values)
	}
	if got := h.Latitude(0); got != -19.75 {
		t.Fatalf("top row latitude = %v", got)
	}
}

func TestReadGridErrors(t *testing.T) {
	cases := map[string]string{
		"missing cellsize": "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\n1\n",
		"short data":       "ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
		"extra data":       "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2\n",
		"bad value":        "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nx1\n",
		"unknown key":      "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nbogus 3\n1\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadGrid(strings.NewReader(input), func(int, int, float64) {}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDetectScenario(t *testing.T) {
	grid := "ncols 3\nnrows 1\nxllcorner -10\nyllcorner 0\ncellsize 5\nNODATA_value -1\n0 -1 0\n"
	set, err := Detect(strings.NewReader(grid), 0, 0)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	points := set.Points()
	if len(points) != 2 {
		t.Fatalf("expected 2 hotpoints, got %+v", points)
	}
	if points[0].Col != 0 || points[0].Lon != -10 || points[0].Lat != 0 {
		t.Fatalf("unexpected first hotpoint %+v", points[0])
	}
	if points[1].Col != 2 || points[1].Lon != 0 || points[1].Lat != 0 {
		t.Fatalf("unexpected second hotpoint %+v", points[1])
	}
}

func TestDetectIgnoresOtherCodesAndNoData(t *testing.T) {
	grid := "ncols 4\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\nNODATA_value 255\n0 1 2 255\n3 0 255 0\n"
	set, err := Detect(strings.NewReader(grid), 0, 0)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	var keys []Key
	for _, p := range set.Points() {
		keys = append(keys, p.Key)
	}
	want := []Key{{0, 0}, {1, 1}, {1, 3}}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
	// Row 0 is the northern row.
	if p := set.Points()[0]; p.Lat != 1 {
		t.Fatalf("top row latitude = %v", p.Lat)
	}
}

func TestDetectionCodeEqualToNoData(t *testing.T) {
	grid := "ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nNODATA_value 0\n0 0\n"
	set, err := Detect(strings.NewReader(grid), 0, 0)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if set.Len() != 0 {
		t.Fatalf("sentinel cells must never qualify, got %d", set.Len())
	}
}

func TestEnrichLeftJoin(t *testing.T) {
	primary := "ncols 3\nnrows 1\nxllcorner -10\nyllcorner 0\ncellsize 5\nNODATA_value -1\n0 -1 0\n"
	power := "ncols 3\nnrows 1\nxllcorner -10\nyllcorner 0\ncellsize 5\nNODATA_value -9999\n12.5 40 -9999\n"
	set, err := Detect(strings.NewReader(primary), 0, 0)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	n, err := set.Enrich(strings.NewReader(power), "power")
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one enriched hotpoint, got %d", n)
	}
	points := set.Points()
	if len(points) != 2 {
		t.Fatalf("enrichment must not create hotpoints, got %d", len(points))
	}
	if points[0].Properties["power"] != 12.5 {
		t.Fatalf("expected power on (0,0), got %+v", points[0])
	}
	if _, ok := points[1].Properties["power"]; ok {
		t.Fatalf("no-data enrichment must be omitted, got %+v", points[1])
	}
}

func TestEnrichTolerance(t *testing.T) {
	primary := "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n0\n"
	temp := "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nNODATA_value -3.4028234663852886e+38\n-3.40282e+38\n"

	exact, _ := Detect(strings.NewReader(primary), 0, 0)
	if n, _ := exact.Enrich(strings.NewReader(temp), "temperature"); n != 1 {
		t.Fatalf("exact comparison should keep the rounded sentinel, got %d", n)
	}
	loose, _ := Detect(strings.NewReader(primary), 0, 1e33)
	if n, _ := loose.Enrich(strings.NewReader(temp), "temperature"); n != 0 {
		t.Fatalf("tolerance should treat the rounded sentinel as no-data, got %d", n)
	}
}

func TestEnrichGridMismatch(t *testing.T) {
	set, _ := Detect(strings.NewReader("ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n0 0\n"), 0, 0)
	_, err := set.Enrich(strings.NewReader("ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n5\n"), "area")
	if err == nil {
		t.Fatal("expected grid mismatch error")
	}
}

func TestFeatureCollectionCRSAndProperties(t *testing.T) {
	points := []Hotpoint{
		{Key: Key{0, 0}, Code: 0, Lon: -10, Lat: 0, Properties: map[string]float64{"power": 12.5}},
		{Key: Key{0, 2}, Code: 0, Lon: 0, Lat: 0},
	}
	data, err := FeatureCollection(points).MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	crs, _ := raw["crs"].(map[string]any)
	props, _ := crs["properties"].(map[string]any)
	if props["name"] != CRS84 {
		t.Fatalf("missing crs member: %s", data)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatalf("UnmarshalFeatureCollection: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}
	if pt, ok := fc.Features[0].Geometry.(orb.Point); !ok || pt.Lon() != -10 || pt.Lat() != 0 {
		t.Fatalf("unexpected geometry %v", fc.Features[0].Geometry)
	}
	if fc.Features[0].Properties["power"] != 12.5 {
		t.Fatalf("unexpected properties %v", fc.Features[0].Properties)
	}
	if _, ok := fc.Features[1].Properties["power"]; ok {
		t.Fatalf("absent enrichment must be omitted: %v", fc.Features[1].Properties)
	}
	if _, ok := fc.Features[1].Properties["code"]; !ok {
		t.Fatalf("code property is required: %v", fc.Features[1].Properties)
	}
}

// fakeTranslate writes a canned ASCII grid plus the sidecars gdal_translate
// produces.
type fakeTranslate struct {
	grids map[string]string
	fail  string
	calls [][]string
}

func (f *fakeTranslate) Run(_ context.Context, name string, args ...string) (toolrun.Result, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	src, dst := args[2], args[3]
	if filepath.Base(src) == f.fail {
		return toolrun.Result{}, services.Wrap(services.ErrExternalTool, "toolrun", name, "exit status 1", nil)
	}
	content, ok := f.grids[filepath.Base(src)]
	if !ok {
		return toolrun.Result{}, errors.New("unexpected raster " + src)
	}
	for path, body := range map[string]string{
		dst:                                    content,
		strings.TrimSuffix(dst, ".asc") + ".prj": "GEOGCS",
		dst + ".aux.xml":                        "<PAMDataset/>",
	} {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return toolrun.Result{}, err
		}
	}
	return toolrun.Result{}, nil
}

func extractorFixture(t *testing.T, exec toolrun.Executor) (*Extractor, postprocess.Input, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Hotspots.Enrichment = []config.Enrichment{
		{Variable: "Power", Property: "power"},
		{Variable: "Temp", Property: "temperature"},
		{Variable: "Area", Property: "area"},
	}
	work := t.TempDir()
	out := t.TempDir()
	rasters := map[string]string{}
	for _, v := range []string{"DQF", "Power", "Temp"} {
		path := filepath.Join(work, v+"_2021-09-02_19-10.nc")
		if err := os.WriteFile(path, []byte("nc"), 0o644); err != nil {
			t.Fatal(err)
		}
		rasters[v] = path
	}
	pub := publish.New(out, logging.NewNop())
	in := postprocess.Input{Stream: "goesr-level2", Tag: "FDCF", Stamp: "2021-09-02_19-10", Rasters: rasters, WorkDir: work}
	return NewExtractor(&cfg, exec, pub, logging.NewNop()), in, out
}

func TestExtractorProcess(t *testing.T) {
	header := "ncols 3\nnrows 1\nxllcorner -10\nyllcorner 0\ncellsize 5\nNODATA_value -1\n"
	exec := &fakeTranslate{grids: map[string]string{
		"DQF_2021-09-02_19-10.nc":   header + "0 -1 0\n",
		"Power_2021-09-02_19-10.nc": header + "12.5 99 -1\n",
		"Temp_2021-09-02_19-10.nc":  header + "-1 -1 330\n",
	}}
	ext, in, out := extractorFixture(t, exec)

	if got := ext.Required(); strings.Join(got, ",") != "DQF,Power,Temp,Area" {
		t.Fatalf("unexpected required variables %v", got)
	}
	if err := ext.Process(context.Background(), in); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(exec.calls) != 3 || exec.calls[0][0] != "gdal_translate" || exec.calls[0][2] != "AAIGrid" {
		t.Fatalf("unexpected tool calls %v", exec.calls)
	}

	data, err := os.ReadFile(filepath.Join(out, "gnc-goesrlevel2-hotspots_2021-09-02_19-10.geojson"))
	if err != nil {
		t.Fatalf("published geojson missing: %v", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}
	first, second := fc.Features[0].Properties, fc.Features[1].Properties
	if first["power"] != 12.5 || first["temperature"] != nil {
		t.Fatalf("unexpected first feature %v", first)
	}
	if second["temperature"] != 330.0 || second["power"] != nil {
		t.Fatalf("unexpected second feature %v", second)
	}

	entries, _ := os.ReadDir(in.WorkDir)
	if len(entries) != 0 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("intermediates left in working dir: %v", names)
	}
}

func TestExtractorCleansUpOnToolFailure(t *testing.T) {
	header := "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n"
	exec := &fakeTranslate{
		grids: map[string]string{"DQF_2021-09-02_19-10.nc": header + "0\n"},
		fail:  "Power_2021-09-02_19-10.nc",
	}
	ext, in, out := extractorFixture(t, exec)

	err := ext.Process(context.Background(), in)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected tool failure, got %v", err)
	}
	if entries, _ := os.ReadDir(out); len(entries) != 0 {
		t.Fatalf("nothing should be published on failure")
	}
	if entries, _ := os.ReadDir(in.WorkDir); len(entries) != 0 {
		t.Fatalf("intermediates must be removed on failure, found %d", len(entries))
	}
}

func TestExtractorRequiresPrimary(t *testing.T) {
	ext, in, _ := extractorFixture(t, &fakeTranslate{})
	delete(in.Rasters, "DQF")
	if err := ext.Process(context.Background(), in); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
