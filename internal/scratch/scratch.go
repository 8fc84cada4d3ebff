// Package scratch manages per-job working directories under the configured
// scratch root.
//
// Acquire hands a job an isolated directory plus a release function that
// removes it; CleanStale sweeps directories left behind by crashed processes.
// Job success or failure never leaves residue as long as release runs.
package scratch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"waveline/internal/logging"
)

// Acquire creates an isolated working directory for a job and returns its
// path together with a release function. Release is safe to call more than
// once and removes the directory and everything under it.
func Acquire(baseDir, name string) (string, func(), error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return "", nil, fmt.Errorf("scratch base directory required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create scratch base: %w", err)
	}

	dir, err := os.MkdirTemp(baseDir, sanitizeName(name)+"-")
	if err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}

	release := func() {
		_ = os.RemoveAll(dir)
	}
	return dir, release, nil
}

// CleanStaleResult contains the outcome of a stale directory sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes scratch directories older than maxAge. Directories in
// use by live jobs are protected by the age cutoff; only abandoned dirs aged
// past it are taken.
func CleanStale(baseDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return result
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: baseDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(baseDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale scratch directory",
					logging.String("path", dirPath),
					logging.Error(err),
				)
			}
		} else {
			result.Removed = append(result.Removed, dirPath)
			if logger != nil {
				logger.Info("removed stale scratch directory",
					logging.String("path", dirPath),
					logging.Duration("age", time.Since(info.ModTime())),
				)
			}
		}
	}

	return result
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "job"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
