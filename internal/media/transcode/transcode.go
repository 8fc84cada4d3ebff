package transcode

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"waveline/internal/ledger"
)

var commandContext = exec.CommandContext

// Client defines transcoding behaviour for a single derived format.
type Client interface {
	Transcode(ctx context.Context, inputPath, outputDir string, format ledger.Format) (string, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default ffmpeg binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(binary) != "" {
			c.binary = binary
		}
	}
}

// WithMP3Bitrate sets the bitrate passed to the mp3 encoder, e.g. "192k".
func WithMP3Bitrate(bitrate string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(bitrate) != "" {
			c.mp3Bitrate = bitrate
		}
	}
}

// WithTimeout bounds each transcode invocation. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *CLI) {
		c.timeout = timeout
	}
}

// CLI wraps the ffmpeg command-line encoder.
type CLI struct {
	binary     string
	mp3Bitrate string
	timeout    time.Duration
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg", mp3Bitrate: "192k"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Transcode converts inputPath to the requested format inside outputDir and
// returns the produced file path. ffmpeg diagnostics are folded into the
// returned error on failure.
func (c *CLI) Transcode(ctx context.Context, inputPath, outputDir string, format ledger.Format) (string, error) {
	if strings.TrimSpace(inputPath) == "" {
		return "", errors.New("input path required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return "", errors.New("output directory required")
	}

	outputPath := filepath.Join(outputDir, string(format)+"."+string(format))
	codecArgs, err := c.codecArgs(format)
	if err != nil {
		return "", err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{"-hide_banner", "-nostdin", "-v", "error", "-y", "-i", inputPath, "-vn"}
	args = append(args, codecArgs...)
	args = append(args, outputPath)

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ffmpeg %s transcode: %w", format, ctx.Err())
		}
		return "", fmt.Errorf("ffmpeg %s transcode: %w: %s", format, err, strings.TrimSpace(string(output)))
	}
	return outputPath, nil
}

func (c *CLI) codecArgs(format ledger.Format) ([]string, error) {
	switch format {
	case ledger.FormatMP3:
		return []string{"-codec:a", "libmp3lame", "-b:a", c.mp3Bitrate}, nil
	case ledger.FormatWAV:
		return []string{"-codec:a", "pcm_s16le"}, nil
	default:
		return nil, fmt.Errorf("unsupported transcode format %q", format)
	}
}
