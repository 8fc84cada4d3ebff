// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// This package has no waveline-specific dependencies and could be extracted
// as a standalone library.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual stream properties
//   - Format: container-level metadata (duration, size, bitrate)
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns parsed Result
//
// Helper methods on Result expose audio stream counts, codec names, duration
// parsing, and sample-rate extraction used by upload admission.
package ffprobe
