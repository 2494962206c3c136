package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/micstream/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [recording-name]",
	Short: "Record a fixed-length clip from the device",
	Long: `Ask the device for one recording and save it under the output directory.
The clip length comes from recording.duration_seconds; a YAML sidecar with the
sample format is written next to it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		slog.Info("Record command started", "name", name)

		if dir, _ := cmd.Flags().GetString("output"); dir != "" {
			cfg.Output.Directory = dir
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := service.New(cfg, cfgFile, nil)
		info, err := svc.Record(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to record: %w", err)
		}

		fmt.Printf("Saved %s (%s, %d frames, %d-bit, shift %d)\n",
			info.File, info.SizeHuman, info.Frames, info.BitDepth, info.ShiftAmount)

		// Execute pipeline if specified
		return executePipeline(ctx, svc, name, 'r')
	},
}

func init() {
	recordCmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
}
