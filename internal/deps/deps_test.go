package deps

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable, got %#v", results[1])
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank result %#v", results[2])
	}

	err := Missing(results)
	if err == nil || !strings.Contains(err.Error(), "Missing") || strings.Contains(err.Error(), "Present") {
		t.Fatalf("unexpected missing error: %v", err)
	}
}

func TestChecker(t *testing.T) {
	binDir := t.TempDir()
	ffmpeg := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(ffmpeg, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	ok := Checker([]Requirement{{Name: "FFmpeg", Command: ffmpeg}})
	if err := ok(context.Background()); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}

	reqs := Requirements(filepath.Join(binDir, "nope"))
	if len(reqs) != 2 || reqs[1].Command != YTDLPBinary {
		t.Fatalf("unexpected requirements %#v", reqs)
	}
	if err := Checker(reqs[:1])(context.Background()); err == nil {
		t.Fatalf("expected missing ffmpeg to fail readiness")
	}
}
