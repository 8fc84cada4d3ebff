package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateBlobStore(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server.bind must be set")
	}
	if c.Server.MaxUploadMiB <= 0 {
		return errors.New("server.max_upload_mib must be positive")
	}
	if c.Server.PresignExpiryMinutes <= 0 {
		return errors.New("server.presign_expiry_minutes must be positive")
	}
	return nil
}

func (c *Config) validateBlobStore() error {
	if strings.TrimSpace(c.BlobStore.Endpoint) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/waveline/config.toml"
		}
		return fmt.Errorf("blobstore.endpoint is required. Set WAVELINE_BLOB_ENDPOINT or edit %s (create with 'waveline config init')", defaultPath)
	}
	if strings.TrimSpace(c.BlobStore.Bucket) == "" {
		return errors.New("blobstore.bucket must be set")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.RequiredCodec == "" {
		return errors.New("ingest.required_codec must be set")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if strings.TrimSpace(c.Transcode.FFmpegBinary) == "" {
		return errors.New("transcode.ffmpeg_binary must be set")
	}
	if strings.TrimSpace(c.Transcode.FFprobeBinary) == "" {
		return errors.New("transcode.ffprobe_binary must be set")
	}
	if c.Transcode.TimeoutSeconds <= 0 {
		return errors.New("transcode.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.WorkerCount <= 0 {
		return errors.New("queue.worker_count must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return errors.New("queue.max_attempts must be positive")
	}
	if c.Queue.InitialDelaySeconds <= 0 {
		return errors.New("queue.initial_delay_seconds must be positive")
	}
	if c.Queue.BackoffMultiplier < 1 {
		return errors.New("queue.backoff_multiplier must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
