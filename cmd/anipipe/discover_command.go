package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"anipipe/internal/logging"
)

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var backfill bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one catalog discovery pass and enqueue new work",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			rt, err := buildRuntime(cfg, logger, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			added := rt.reconciler.Reconcile(cmd.Context(), backfill)
			snap := rt.stores.queue.Snapshot(0)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Enqueued %d new item(s); %d pending, %d processed\n",
				added, snap.QueueSize, snap.ProcessedCount)
			return nil
		},
	}

	cmd.Flags().BoolVar(&backfill, "init", false, "Backfill pass: bypass the folder stability window")
	return cmd
}
