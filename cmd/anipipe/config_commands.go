package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"anipipe/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n\n", ctx.configPath)

			rows := [][]string{
				{"paths.work_dir", cfg.Paths.WorkDir},
				{"paths.state_dir", cfg.Paths.StateDir},
				{"paths.log_dir", cfg.Paths.LogDir},
				{"repository.input_repo", cfg.Repository.InputRepo},
				{"repository.output_repo", cfg.Repository.OutputRepo},
				{"discovery.granularity", cfg.Discovery.Granularity},
				{"discovery.poll_interval", fmt.Sprintf("%ds", cfg.Discovery.PollInterval)},
				{"discovery.stability_window", fmt.Sprintf("%ds", cfg.Discovery.StabilityWindow)},
				{"worker.max_episodes_per_batch", fmt.Sprintf("%d", cfg.Worker.MaxEpisodesPerBatch)},
				{"worker.min_free_space_gib", fmt.Sprintf("%d", cfg.Worker.MinFreeSpaceGiB)},
				{"encoder.binary", cfg.Encoder.Binary},
				{"encoder.args", strings.Join(cfg.Encoder.Args, " ")},
				{"encoder.scene_threshold", fmt.Sprintf("%.1f", cfg.Encoder.SceneThreshold)},
				{"frames.quality", fmt.Sprintf("%d", cfg.Frames.Quality)},
				{"frames.max_edge", fmt.Sprintf("%d", cfg.Frames.MaxEdge)},
				{"transport.enabled", yesNo(cfg.Transport.Enabled)},
				{"logging.format", cfg.Logging.Format},
				{"logging.level", cfg.Logging.Level},
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Setting", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			}
			if err := config.WriteSample(target); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set repository.input_repo (and token or MODELSCOPE_API_TOKEN) before running.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
