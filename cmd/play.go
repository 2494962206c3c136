package cmd

import (
	"fmt"

	"github.com/audiolibrelab/micstream/internal/service"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [recording-name]",
	Short: "Play a saved recording",
	Long: `Play a saved recording with an external player.
WAV files open in vlc, mpv, ffplay or aplay; raw files need ffplay or aplay,
which are told the sample format explicitly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		fmt.Printf("Playing recording: %s\n", name)

		svc := service.New(cfg, cfgFile, nil)
		if err := svc.Play(name); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}

		return nil
	},
}
