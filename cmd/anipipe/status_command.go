package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"anipipe/internal/fileutil"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue, progress, and disk status",
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

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			snap := stores.queue.Snapshot(5)
			batches, series := stores.ledger.Counts()

			fmt.Fprintln(out, renderSectionHeader("Queue", colorize))
			fmt.Fprintf(out, "  Pending:    %d\n", snap.QueueSize)
			fmt.Fprintf(out, "  Processing: %d\n", snap.Processing)
			fmt.Fprintf(out, "  Processed:  %d\n", snap.ProcessedCount)

			if len(snap.NextUp) > 0 {
				rows := make([][]string, 0, len(snap.NextUp))
				for _, item := range snap.NextUp {
					rows = append(rows, []string{
						item.Identity,
						identityTitle(item.Identity),
						fmt.Sprintf("%d", item.Priority),
						humanize.IBytes(uint64(item.Size)),
						item.AddedAt.Local().Format(time.RFC3339),
					})
				}
				fmt.Fprintln(out, renderSectionHeader("Next up", colorize))
				fmt.Fprintln(out, renderTable(
					[]string{"Identity", "Title", "Priority", "Size", "Added"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
			}

			fmt.Fprintln(out, renderSectionHeader("Progress", colorize))
			fmt.Fprintf(out, "  Batches completed: %d\n", batches)
			fmt.Fprintf(out, "  Series completed:  %d\n", series)

			fmt.Fprintln(out, renderSectionHeader("Disk", colorize))
			if usage, err := fileutil.Usage(cfg.Paths.WorkDir); err == nil {
				fmt.Fprintf(out, "  Work dir free: %s of %s\n",
					humanize.IBytes(usage.Free), humanize.IBytes(usage.Total))
			} else {
				fmt.Fprintf(out, "  Work dir: unavailable (%v)\n", err)
			}
			return nil
		},
	}
}
