package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gncimport/internal/config"
	"gncimport/internal/logging"
	"gncimport/internal/services"
)

type recordingUploader struct {
	keys []string
	err  error
}

func (r *recordingUploader) Upload(_ context.Context, localPath, key string) error {
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	r.keys = append(r.keys, key)
	return r.err
}

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPublishMovesIntoDir(t *testing.T) {
	work := t.TempDir()
	out := filepath.Join(t.TempDir(), "import")
	src := writeArtifact(t, work, "warped.nc")

	p := New(out, logging.NewNop())
	dst, err := p.Publish(context.Background(), src, "gnc-cmi_[CMI-01]2021-09-02_19-10.nc")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if dst != filepath.Join(out, "gnc-cmi_[CMI-01]2021-09-02_19-10.nc") {
		t.Fatalf("unexpected destination %q", dst)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source should be moved, stat err=%v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("destination missing: %v", err)
	}
}

func TestPublishRejectsPathNames(t *testing.T) {
	p := New(t.TempDir(), logging.NewNop())
	_, err := p.Publish(context.Background(), "/tmp/x", "../escape.nc")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPublishMirrorsWithPrefix(t *testing.T) {
	work := t.TempDir()
	up := &recordingUploader{}
	p := New(t.TempDir(), logging.NewNop(), WithMirror(up, "/gnc/"))
	if _, err := p.Publish(context.Background(), writeArtifact(t, work, "a.geojson"), "hot.geojson"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(up.keys) != 1 || up.keys[0] != "gnc/hot.geojson" {
		t.Fatalf("unexpected uploads %v", up.keys)
	}
}

func TestPublishMirrorFailureIsNotFatal(t *testing.T) {
	up := &recordingUploader{err: errors.New("bucket offline")}
	p := New(t.TempDir(), logging.NewNop(), WithMirror(up, ""))
	dst, err := p.Publish(context.Background(), writeArtifact(t, t.TempDir(), "a.nc"), "b.nc")
	if err != nil {
		t.Fatalf("mirror failure should not fail publish: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("local artifact missing: %v", err)
	}
}

func TestNewMinioMirrorValidates(t *testing.T) {
	if _, err := NewMinioMirror(config.ObjectStore{Bucket: "b"}); err == nil {
		t.Fatal("expected error without endpoint")
	}
	if _, err := NewMinioMirror(config.ObjectStore{Endpoint: "http://localhost:9000", Bucket: "b"}); err == nil {
		t.Fatal("expected error for endpoint with scheme")
	}
	m, err := NewMinioMirror(config.ObjectStore{Endpoint: "localhost:9000", Bucket: "b", AccessKey: "a", SecretKey: "s"})
	if err != nil || m == nil {
		t.Fatalf("NewMinioMirror: %v", err)
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("x.geojson"); got != "application/geo+json" {
		t.Fatalf("geojson content type %q", got)
	}
	if got := contentType("x.nc"); got != "application/x-netcdf" {
		t.Fatalf("netcdf content type %q", got)
	}
}
