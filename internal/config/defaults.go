package config

const (
	defaultDataDir              = "~/.local/share/waveline"
	defaultBind                 = "127.0.0.1:8480"
	defaultMaxUploadMiB         = 256
	defaultPresignExpiryMinutes = 15
	defaultRedisAddr            = "127.0.0.1:6379"
	defaultBucket               = "waveline"
	defaultRequiredCodec        = "opus"
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultTranscodeTimeout     = 600
	defaultMP3Bitrate           = "192k"
	defaultWorkerCount          = 4
	defaultMaxAttempts          = 5
	defaultInitialDelaySeconds  = 30
	defaultBackoffMultiplier    = 2.0
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Server: Server{
			Bind:                 defaultBind,
			MaxUploadMiB:         defaultMaxUploadMiB,
			PresignExpiryMinutes: defaultPresignExpiryMinutes,
		},
		Redis: Redis{
			Addr: defaultRedisAddr,
		},
		BlobStore: BlobStore{
			Bucket: defaultBucket,
		},
		Ingest: Ingest{
			RequiredCodec: defaultRequiredCodec,
		},
		Transcode: Transcode{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			TimeoutSeconds: defaultTranscodeTimeout,
			MP3Bitrate:     defaultMP3Bitrate,
		},
		Queue: Queue{
			WorkerCount:         defaultWorkerCount,
			MaxAttempts:         defaultMaxAttempts,
			InitialDelaySeconds: defaultInitialDelaySeconds,
			BackoffMultiplier:   defaultBackoffMultiplier,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
