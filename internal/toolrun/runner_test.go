package toolrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"gncimport/internal/logging"
	"gncimport/internal/services"
)

func setHelperCommand(t *testing.T, mode string) *[]string {
	t.Helper()
	var captured []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append([]string{name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "TOOLRUN_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &captured
}

func TestRunSuccess(t *testing.T) {
	captured := setHelperCommand(t, "success")
	r := New(0, logging.NewNop())

	res, err := r.Run(context.Background(), "ncpdq", "-O", "-U", "-v", "CMI", "in.nc", "out.nc")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "done" {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}
	if res.Warning || res.Truncated {
		t.Fatalf("unexpected flags %+v", res)
	}
	if got := strings.Join(*captured, " "); got != "ncpdq -O -U -v CMI in.nc out.nc" {
		t.Fatalf("unexpected command %q", got)
	}
}

func TestRunStderrIsWarning(t *testing.T) {
	setHelperCommand(t, "warn")
	res, err := New(0, logging.NewNop()).Run(context.Background(), "gdalwarp")
	if err != nil {
		t.Fatalf("stderr on success must not fail: %v", err)
	}
	if !res.Warning || res.Stderr != "Warning 1: projection approximated" {
		t.Fatalf("expected warning result, got %+v", res)
	}
}

func TestRunNonZeroExitFails(t *testing.T) {
	setHelperCommand(t, "fail")
	_, err := New(0, logging.NewNop()).Run(context.Background(), "gdalwarp")
	if err == nil {
		t.Fatal("expected failure")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "ERROR 4: cannot open") || !strings.Contains(err.Error(), "exit status 3") {
		t.Fatalf("error should carry stderr and status: %v", err)
	}
}

func TestRunTruncatesOutput(t *testing.T) {
	setHelperCommand(t, "flood")
	res, err := New(64, logging.NewNop()).Run(context.Background(), "gdal_translate")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !res.Truncated || len(res.Stdout) != 64 {
		t.Fatalf("expected 64 bytes and truncation, got %d truncated=%v", len(res.Stdout), res.Truncated)
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := New(0, logging.NewNop()).Run(context.Background(), "definitely-not-a-gnc-tool")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool for missing binary, got %v", err)
	}
}

func TestBoundedBuffer(t *testing.T) {
	b := newBoundedBuffer(5)
	for _, chunk := range []string{"abc", "def", "ghi"} {
		if n, err := b.Write([]byte(chunk)); n != len(chunk) || err != nil {
			t.Fatalf("Write = %d, %v", n, err)
		}
	}
	if b.String() != "abcde" || !b.truncated {
		t.Fatalf("unexpected buffer %q truncated=%v", b.String(), b.truncated)
	}
}

func TestCommandLineQuotes(t *testing.T) {
	got := CommandLine("gdalwarp", "-s_srs", "+proj=geos +lon_0=-75", "out.nc")
	if got != `gdalwarp -s_srs "+proj=geos +lon_0=-75" out.nc` {
		t.Fatalf("unexpected command line %q", got)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("TOOLRUN_HELPER_MODE") {
	case "success":
		fmt.Fprintln(os.Stdout, "done")
		os.Exit(0)
	case "warn":
		fmt.Fprintln(os.Stderr, "Warning 1: projection approximated")
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "ERROR 4: cannot open")
		os.Exit(3)
	case "flood":
		fmt.Fprint(os.Stdout, strings.Repeat("x", 4096))
		os.Exit(0)
	default:
		os.Exit(2)
	}
}
