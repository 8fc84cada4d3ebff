package main

import (
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"waveline/internal/api"
	"waveline/internal/blobstore"
	"waveline/internal/delivery"
	"waveline/internal/deps"
	"waveline/internal/ingest"
	"waveline/internal/jobs"
	"waveline/internal/ledger"
	"waveline/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingest and delivery server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			if err := deps.Verify(deps.IngestRequirements(cfg)); err != nil {
				return err
			}

			release, err := acquireLock(cfg, "serve")
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

			queueClient := asynq.NewClient(redisClientOpt(cfg))
			defer queueClient.Close()
			enqueuer := jobs.NewEnqueuer(queueClient, jobs.PolicyFromConfig(cfg))

			ingestSvc := ingest.NewService(cfg, store, blobs, enqueuer, logger)
			deliverySvc := delivery.NewService(store, blobs)

			server := api.NewServer(cfg, ingestSvc, deliverySvc, store, &redisPinger{client: redisClient}, logger)
			if err := server.Start(signalCtx); err != nil {
				return err
			}

			logger.Info("waveline serving",
				logging.String("bind", server.Addr()),
				logging.String("ledger", store.Path()),
			)

			<-signalCtx.Done()
			logger.Info("shutting down")
			server.Stop()
			return nil
		},
	}
}
