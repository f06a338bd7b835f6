package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"anipipe/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var identity string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stores, err := openState(cfg, nil)
			if err != nil {
				return err
			}
			defer stores.Close()

			var runs []history.Run
			if identity != "" {
				runs, err = stores.history.ForIdentity(cmd.Context(), identity)
			} else {
				runs, err = stores.history.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recorded runs")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				detail := run.ErrorMessage
				if detail == "" {
					detail = fmt.Sprintf("%d frames", run.Frames)
				}
				rows = append(rows, []string{
					run.Identity,
					run.Status,
					humanize.IBytes(uint64(run.BytesIn)),
					humanize.IBytes(uint64(run.BytesOut)),
					run.Duration().Round(time.Second).String(),
					run.FinishedAt.Local().Format(time.RFC3339),
					truncate(detail, 60),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Identity", "Status", "In", "Out", "Duration", "Finished", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().StringVar(&identity, "identity", "", "Show every run for one identity")
	return cmd
}
