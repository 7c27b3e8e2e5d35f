package main

import (
	"strings"
	"testing"
	"time"
)

func TestStreamLabel(t *testing.T) {
	cases := map[string]string{
		"goesr-level2": "Goesr Level2",
		"cmi":          "Cmi",
		"subp_inpe":    "Subp Inpe",
	}
	for in, want := range cases {
		if got := streamLabel(in); got != want {
			t.Fatalf("streamLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseInstant(t *testing.T) {
	want := time.Date(2021, 9, 2, 19, 10, 0, 0, time.UTC)
	for _, in := range []string{"2021-09-02T19:10:00Z", "2021-09-02T16:10:00-03:00", "2021-09-02_19-10"} {
		got, err := parseInstant(in)
		if err != nil {
			t.Fatalf("parseInstant(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parseInstant(%q) = %v", in, got)
		}
	}
	if _, err := parseInstant("last tuesday"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("Daemon", statusWarn, "lock busy", false)
	if !strings.Contains(line, "Daemon:") || !strings.Contains(line, "[WARN] lock busy") {
		t.Fatalf("unexpected line %q", line)
	}
	colored := renderStatusLine("Daemon", statusOK, "", true)
	if !strings.HasPrefix(colored, ansiGreen) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected colored line, got %q", colored)
	}
}

func TestRenderTablePadsRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "only") || !strings.Contains(out, "╭") {
		t.Fatalf("unexpected table %q", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}
