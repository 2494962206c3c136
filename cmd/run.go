package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/audiolibrelab/micstream/internal/service"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [recording-name]",
	Short: "Execute pipeline steps on a recording",
	Long:  `Execute the specified pipeline steps on a recording. Use -p to specify which steps to run (r=record, p=play).`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		if pipeline == "" {
			return fmt.Errorf("no pipeline specified, use -p flag (e.g., -p rp)")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := service.New(cfg, cfgFile, nil)
		steps := []rune(strings.ToLower(pipeline))

		for i, step := range steps {
			fmt.Printf("Pipeline: executing step %d/%d: '%c'...\n", i+1, len(steps), step)
			if err := runStep(ctx, svc, name, step); err != nil {
				return err
			}
		}

		return nil
	},
}
