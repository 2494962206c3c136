package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/micstream/internal/service"

	"github.com/spf13/cobra"
)

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "Print decoded samples from the device",
	Long: `Switch the device to decoded printing and copy the samples to stdout,
one signed integer per line, until Ctrl+C. Pipe the output into a plotter to
inspect the signal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := service.New(cfg, cfgFile, nil)
		if err := svc.Samples(ctx, os.Stdout); err != nil {
			return fmt.Errorf("sample printing failed: %w", err)
		}
		return nil
	},
}
