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

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Play the device's live stream",
	Long: `Start the device's raw live stream and play it on the default output
until Ctrl+C. 32-bit streams are decoded and narrowed to 16 bits for playback.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Listening... Press Ctrl+C to stop")

		svc := service.New(cfg, cfgFile, nil)
		if err := svc.Listen(ctx); err != nil {
			return fmt.Errorf("live playback failed: %w", err)
		}
		return nil
	},
}
