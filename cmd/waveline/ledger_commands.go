package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"waveline/internal/jobs"
	"waveline/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and repair the ingestion ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerShowCommand(ctx))
	ledgerCmd.AddCommand(newLedgerRequeueCommand(ctx))
	return ledgerCmd
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingestion records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var statuses []ledger.Status
			if trimmed := strings.TrimSpace(statusFlag); trimmed != "" {
				status, ok := ledger.ParseStatus(trimmed)
				if !ok {
					return fmt.Errorf("unknown status %q (want one of %v)", trimmed, ledger.AllStatuses())
				}
				statuses = append(statuses, status)
			}

			records, err := store.List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no records")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.ID,
					string(rec.Status),
					dash(rec.Source),
					strconv.Itoa(rec.Attempts),
					formatTimestamp(rec.CreatedAt),
					truncate(dash(rec.ErrorMessage), 40),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Status", "Source", "Attempts", "Created", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (pending, completed, failed)")
	return cmd
}

func newLedgerShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one ingestion record in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("record %s not found", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:           %s\n", rec.ID)
			fmt.Fprintf(out, "Status:       %s\n", rec.Status)
			fmt.Fprintf(out, "Fingerprint:  %s\n", rec.ContentHash)
			fmt.Fprintf(out, "Source:       %s\n", dash(rec.Source))
			fmt.Fprintf(out, "External ID:  %s\n", dash(rec.ExternalRef))
			fmt.Fprintf(out, "Original:     %s\n", dash(rec.OriginalKey))
			for _, format := range ledger.DerivedFormats() {
				key, _ := rec.DerivedKey(format)
				fmt.Fprintf(out, "Derived %s:  %s\n", format, dash(key))
			}
			fmt.Fprintf(out, "Attempts:     %d\n", rec.Attempts)
			fmt.Fprintf(out, "Error:        %s\n", dash(rec.ErrorMessage))
			fmt.Fprintf(out, "Created:      %s\n", formatTimestamp(rec.CreatedAt))
			fmt.Fprintf(out, "Updated:      %s\n", formatTimestamp(rec.UpdatedAt))
			return nil
		},
	}
}

func newLedgerRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>",
		Short: "Re-enqueue the transcode job for a pending record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("record %s not found", args[0])
			}
			if rec.Status.IsTerminal() {
				return fmt.Errorf("record %s is %s; terminal records cannot be requeued", rec.ID, rec.Status)
			}

			if _, err := pingRedis(cmd.Context(), cfg); err != nil {
				return err
			}
			queueClient := asynq.NewClient(redisClientOpt(cfg))
			defer queueClient.Close()

			enqueuer := jobs.NewEnqueuer(queueClient, jobs.PolicyFromConfig(cfg))
			if err := enqueuer.EnqueueTranscode(cmd.Context(), rec.ID, rec.OriginalKey); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued transcode job for %s\n", rec.ID)
			return nil
		},
	}
}
