package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"waveline/internal/config"
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
		{Name: "Unset", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatal("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatal("expected detail message for missing binary")
	}

	if results[2].Available {
		t.Fatal("expected unconfigured command to be unavailable")
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unconfigured command: %s", results[2].Detail)
	}
}

func TestCheckBinariesResolvesPath(t *testing.T) {
	binDir := t.TempDir()
	ffprobePath := filepath.Join(binDir, "ffprobe")
	if err := os.WriteFile(ffprobePath, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	results := CheckBinaries([]Requirement{{Name: "ffprobe", Command: "ffprobe"}})
	if !results[0].Available {
		t.Fatalf("expected ffprobe to resolve, got %#v", results[0])
	}
	if results[0].Command != ffprobePath {
		t.Fatalf("expected resolved path %q, got %q", ffprobePath, results[0].Command)
	}
}

func TestVerifyReportsMissingTools(t *testing.T) {
	cfg := config.Default()
	cfg.Transcode.FFmpegBinary = "clearly-not-present-binary"

	err := Verify(WorkerRequirements(&cfg))
	if err == nil {
		t.Fatal("expected verify to fail for missing ffmpeg")
	}
	if !strings.Contains(err.Error(), "ffmpeg") {
		t.Fatalf("expected error to name ffmpeg, got %v", err)
	}
}

func TestVerifyPassesWithStubbedTools(t *testing.T) {
	binDir := t.TempDir()
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		path := filepath.Join(binDir, name)
		if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}
	t.Setenv("PATH", binDir)

	cfg := config.Default()
	if err := Verify(IngestRequirements(&cfg)); err != nil {
		t.Fatalf("ingest requirements: %v", err)
	}
	if err := Verify(WorkerRequirements(&cfg)); err != nil {
		t.Fatalf("worker requirements: %v", err)
	}
}
