package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gncimport/internal/timecodec"
)

// WriteFile creates path, and its parents, with the given content.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ProductName builds an ABI file name whose scan starts at start and lasts
// span. The creation token is set to the end of the scan.
func ProductName(prefix string, start time.Time, span time.Duration) string {
	end := start.Add(span)
	return fmt.Sprintf("%sM6_G16_s%s_e%s_c%s.nc",
		prefix,
		timecodec.FormatOrdinal(start),
		timecodec.FormatOrdinal(end),
		timecodec.FormatOrdinal(end),
	)
}

// CenterOf returns the center time of a name produced by ProductName.
func CenterOf(t testing.TB, prefix, name string) time.Time {
	t.Helper()

	center, ok := timecodec.CenterTime(name, timecodec.Contract{Prefix: prefix, Suffix: ".nc", Format: timecodec.FormatOrdinalSpan})
	if !ok {
		t.Fatalf("not a product name: %s", name)
	}
	return center
}
