package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"anipipe/internal/logging"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var noDiscovery bool
	var pollInterval int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the processing daemon until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if pollInterval > 0 {
				cfg.Discovery.PollInterval = pollInterval
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, err := buildRuntime(cfg, logger, noDiscovery)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.daemon.Start(signalCtx); err != nil {
				return err
			}
			<-signalCtx.Done()
			logger.Info("shutting down")
			rt.daemon.Stop()
			return nil
		},
	}

	cmd.Flags().BoolVar(&noDiscovery, "no-discovery", false, "Drain the existing queue without polling the catalog")
	cmd.Flags().IntVar(&pollInterval, "poll-interval", 0, "Override the discovery poll interval in seconds")
	return cmd
}
