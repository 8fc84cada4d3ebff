package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidatesWithEndpoint(t *testing.T) {
	cfg := Default()
	cfg.BlobStore.Endpoint = "127.0.0.1:9000"
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Ingest.RequiredCodec != "opus" {
		t.Fatalf("unexpected default codec: %q", cfg.Ingest.RequiredCodec)
	}
	if cfg.Queue.MaxAttempts != 5 {
		t.Fatalf("unexpected default max attempts: %d", cfg.Queue.MaxAttempts)
	}
}

func TestValidateRejectsMissingEndpoint(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing blobstore endpoint")
	} else if !strings.Contains(err.Error(), "blobstore.endpoint") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadQueuePolicy(t *testing.T) {
	cfg := Default()
	cfg.BlobStore.Endpoint = "127.0.0.1:9000"
	cfg.Queue.BackoffMultiplier = 0.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for backoff multiplier below 1")
	}

	cfg = Default()
	cfg.BlobStore.Endpoint = "127.0.0.1:9000"
	cfg.Queue.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero max attempts")
	}
}

func TestLoadParsesFileAndNormalizesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"

[blobstore]
endpoint = "127.0.0.1:9000"
bucket = "uploads"

[ingest]
required_codec = "PCM_S16LE"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected resolved path %q to exist, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Ingest.RequiredCodec != "pcm_s16le" {
		t.Fatalf("expected codec lowercased, got %q", cfg.Ingest.RequiredCodec)
	}
	if cfg.Paths.ScratchDir != filepath.Join(dir, "data", "scratch") {
		t.Fatalf("expected scratch dir under data dir, got %q", cfg.Paths.ScratchDir)
	}
	if cfg.BlobStore.Bucket != "uploads" {
		t.Fatalf("unexpected bucket: %q", cfg.BlobStore.Bucket)
	}
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv("WAVELINE_BLOB_ACCESS_KEY", "env-access")
	t.Setenv("WAVELINE_BLOB_SECRET_KEY", "env-secret")
	t.Setenv("WAVELINE_REDIS_ADDR", "redis.internal:6380")

	cfg := Default()
	cfg.BlobStore.AccessKey = "file-access"
	cfg.applyEnvOverrides()

	if cfg.BlobStore.AccessKey != "env-access" {
		t.Fatalf("expected env access key, got %q", cfg.BlobStore.AccessKey)
	}
	if cfg.BlobStore.SecretKey != "env-secret" {
		t.Fatalf("expected env secret key, got %q", cfg.BlobStore.SecretKey)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Fatalf("expected env redis addr, got %q", cfg.Redis.Addr)
	}
}

func TestCreateSampleWritesParseableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Server.Bind == "" {
		t.Fatal("expected server bind populated from sample")
	}
}
