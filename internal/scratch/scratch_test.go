package scratch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"waveline/internal/logging"
)

func TestAcquireCreatesIsolatedDir(t *testing.T) {
	base := t.TempDir()

	dir1, release1, err := Acquire(base, "rec-1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release1()
	dir2, release2, err := Acquire(base, "rec-1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release2()

	if dir1 == dir2 {
		t.Fatalf("expected distinct dirs for concurrent jobs, got %s twice", dir1)
	}
	for _, dir := range []string{dir1, dir2} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory at %s: %v", dir, err)
		}
		if !strings.HasPrefix(filepath.Base(dir), "rec-1-") {
			t.Fatalf("expected dir name to embed job name, got %s", dir)
		}
	}
}

func TestReleaseRemovesDirAndContents(t *testing.T) {
	base := t.TempDir()

	dir, release, err := Acquire(base, "rec-cleanup")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "mp3.mp3"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write scratch file: %v", err)
	}

	release()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected scratch dir removed, stat err: %v", err)
	}

	// Release is idempotent.
	release()
}

func TestAcquireSanitizesName(t *testing.T) {
	base := t.TempDir()

	dir, release, err := Acquire(base, "../etc/passwd")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	if filepath.Dir(dir) != base {
		t.Fatalf("expected scratch dir under base, got %s", dir)
	}
	if strings.ContainsAny(filepath.Base(dir), "/.") {
		t.Fatalf("expected sanitized dir name, got %s", filepath.Base(dir))
	}
}

func TestCleanStaleRemovesOldDirsOnly(t *testing.T) {
	base := t.TempDir()

	stale := filepath.Join(base, "stale-job")
	fresh := filepath.Join(base, "fresh-job")
	for _, dir := range []string{stale, fresh} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	result := CleanStale(base, time.Hour, logging.NewNop())
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected cleanup errors: %v", result.Errors)
	}
	if len(result.Removed) != 1 || result.Removed[0] != stale {
		t.Fatalf("unexpected removals: %v", result.Removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh dir should survive: %v", err)
	}
}

func TestCleanStaleMissingBaseIsNoop(t *testing.T) {
	result := CleanStale(filepath.Join(t.TempDir(), "absent"), time.Hour, nil)
	if len(result.Removed) != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
}
