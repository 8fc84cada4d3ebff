package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"waveline/internal/blobstore"
	"waveline/internal/deps"
	"waveline/internal/jobs"
	"waveline/internal/ledger"
	"waveline/internal/logging"
	"waveline/internal/media/transcode"
	"waveline/internal/scratch"
	"waveline/internal/worker"
)

const scratchMaxAge = 6 * time.Hour

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var workersFlag int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the transcode worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if workersFlag > 0 {
				cfg.Queue.WorkerCount = workersFlag
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			if err := deps.Verify(deps.WorkerRequirements(cfg)); err != nil {
				return err
			}

			release, err := acquireLock(cfg, "worker")
			if err != nil {
				return err
			}
			defer release()

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := ledger.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			blobs, err := blobstore.New(signalCtx, cfg)
			if err != nil {
				return err
			}

			redisClient, err := pingRedis(signalCtx, cfg)
			if err != nil {
				return err
			}
			defer redisClient.Close()

			transcoder := transcode.NewCLI(
				transcode.WithBinary(cfg.Transcode.FFmpegBinary),
				transcode.WithMP3Bitrate(cfg.Transcode.MP3Bitrate),
				transcode.WithTimeout(cfg.TranscodeTimeout()),
			)
			handler := worker.NewHandler(cfg, store, blobs, transcoder, logger)

			policy := jobs.PolicyFromConfig(cfg)
			srv := asynq.NewServer(redisClientOpt(cfg), asynq.Config{
				Concurrency:     cfg.Queue.WorkerCount,
				RetryDelayFunc:  policy.RetryDelayFunc,
				ShutdownTimeout: 60 * time.Second,
				Logger:          asynqLogger{logger: logging.NewComponentLogger(logger, "queue")},
			})

			mux := asynq.NewServeMux()
			mux.Handle(jobs.TypeTranscodeRecording, handler)

			go sweepScratch(signalCtx, cfg.Paths.ScratchDir, logger)

			if err := srv.Start(mux); err != nil {
				return err
			}
			logger.Info("worker pool started",
				logging.Int("workers", cfg.Queue.WorkerCount),
				logging.String("redis", cfg.Redis.Addr),
			)

			<-signalCtx.Done()
			logger.Info("shutting down, draining in-flight jobs")
			srv.Shutdown()
			return nil
		},
	}

	cmd.Flags().IntVar(&workersFlag, "workers", 0, "Override the configured worker count")
	return cmd
}

// sweepScratch periodically removes scratch directories abandoned by crashed
// workers.
func sweepScratch(ctx context.Context, dir string, logger *slog.Logger) {
	sweep := logging.NewComponentLogger(logger, "scratch")
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scratch.CleanStale(dir, scratchMaxAge, sweep)
		}
	}
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Error(sprint(args...)) }
