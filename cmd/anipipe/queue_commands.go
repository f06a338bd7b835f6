package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"anipipe/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueResetFailedCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
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

			var statuses []queue.Status
			for _, raw := range listStatuses {
				status, ok := queue.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}

			items := stores.queue.Items(statuses...)
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}

			rows := make([][]string, 0, len(items))
			for _, item := range items {
				detail := ""
				if item.ErrorMessage != "" {
					detail = truncate(item.ErrorMessage, 60)
				}
				rows = append(rows, []string{
					item.Identity,
					identityTitle(item.Identity),
					string(item.Status),
					fmt.Sprintf("%d", item.Priority),
					fmt.Sprintf("%d", item.FileCount),
					humanize.IBytes(uint64(item.Size)),
					item.AddedAt.Local().Format(time.RFC3339),
					detail,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Identity", "Title", "Status", "Priority", "Files", "Size", "Added", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all queue records (the processed set is kept)",
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

			removed, err := stores.queue.Clear()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d queue record(s)\n", removed)
			return nil
		},
	}
}

func newQueueResetFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-failed",
		Short: "Return failed items to discovery for another attempt",
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

			reset, err := stores.queue.ResetFailed()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed item(s); discovery will re-enqueue them\n", reset)
			return nil
		},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
