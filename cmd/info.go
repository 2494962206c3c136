package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/micstream/internal/config"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [recording-name]",
	Short: "Show resolved configuration and derived figures",
	Long: `Display the resolved device configuration with inheritance indicators,
the figures derived from it (frame size, recording budget, data rate, link
headroom) and, when a recording name is given, its file paths.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			path := cfg.RecordingPath(args[0])
			fmt.Printf("=== FILE PATHS ===\n")
			fmt.Printf("recording: %s\n", path)
			fmt.Printf("sidecar: %s\n", strings.TrimSuffix(path, filepath.Ext(path))+".yaml")
			fmt.Printf("clean_name: %s\n\n", config.CleanFileName(args[0]))
		}

		fmt.Printf("=== RESOLVED CONFIGURATION ===\n")
		profileName := cfg.Profile
		if profileName == "" {
			profileName = "(none)"
		}
		fmt.Printf("profile: %s\n", profileName)

		d := cfg.Device
		fmt.Printf("\n[Device]\n")
		fmt.Printf("sample_rate: %d %s\n", d.SampleRate, inheritanceIndicator("sample_rate"))
		fmt.Printf("bit_depth: %d %s\n", d.BitDepth, inheritanceIndicator("bit_depth"))
		fmt.Printf("shift_amount: %d %s\n", d.ShiftAmount, inheritanceIndicator("shift_amount"))
		fmt.Printf("channel: %s %s\n", d.Channel, inheritanceIndicator("channel"))
		fmt.Printf("block_frames: %d %s\n", d.BlockFrames, inheritanceIndicator("block_frames"))
		fmt.Printf("dma_buffers: %d x %d %s\n", d.DMABufferCount, d.DMABufferFrames, inheritanceIndicator("dma_buffer_count"))

		fmt.Printf("\n[Source]\n")
		fmt.Printf("kind: %s\n", cfg.Source.Kind)

		fmt.Printf("\n[Link]\n")
		fmt.Printf("address: %s\n", cfg.Link.Address)
		if config.IsSerialAddress(cfg.Link.Address) {
			fmt.Printf("baud: %d\n", cfg.Link.Baud)
		}

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s\n", cfg.Output.Directory)
		fmt.Printf("format: %s\n", cfg.Output.Format)

		fmt.Printf("\n=== DERIVED ===\n")
		fmt.Printf("frame_bytes: %d\n", cfg.FrameBytes())
		fmt.Printf("block_bytes: %d\n", cfg.BlockBytes())
		fmt.Printf("record_budget: %d bytes (%d s)\n", cfg.RecordBudget(), cfg.Recording.DurationSeconds)
		fmt.Printf("data_rate: %d bytes/s\n", cfg.DataRate())
		if capacity := cfg.LinkCapacity(); capacity > 0 {
			fmt.Printf("link_capacity: %d bytes/s (headroom %.0f%%)\n",
				capacity, 100*float64(capacity-cfg.DataRate())/float64(cfg.DataRate()))
		}

		return nil
	},
}

// inheritanceIndicator returns a formatted indicator for a device field
func inheritanceIndicator(field string) string {
	if cfg.Inheritance == nil {
		return "[unknown]"
	}
	switch cfg.Inheritance.Device[field] {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[unknown]"
	}
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
