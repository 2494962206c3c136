package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/micstream/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	pipeline     string
	profile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "micstream [recording-name]",
	Short: "MEMS microphone acquisition and streaming tool",
	Long: `MicStream acquires audio from an I2S MEMS microphone and serves it over a
byte-stream link (serial, TCP or stdio). The device side records fixed-length
clips, streams raw PCM live or prints decoded samples as text, driven by
single-character commands.

The host side talks to a running device to save recordings, listen live and
play back saved clips.

When a recording name is provided, it acts as 'micstream run [recording-name]'.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// For sources command, only load config if explicitly provided
		if cmd.Name() == "sources" && cfgFile == "" {
			cfg = config.Default()
			return nil
		}

		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = os.ExpandEnv("$HOME/.config/micstream.yaml")
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Validate pipeline if provided
		if err := validatePipeline(); err != nil {
			return err
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// If a recording name is provided, delegate to run command
		if len(args) == 1 {
			return runCmd.RunE(cmd, args)
		}
		// Otherwise show help
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/micstream.yaml)")
	rootCmd.PersistentFlags().StringVarP(&pipeline, "pipeline", "p", "", "pipeline steps: r=record, p=play (e.g., 'rp')")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "device profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=trace every acquired block")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(samplesCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// setupLogging configures slog based on the verbose level. Logs always go to
// stderr: on a stdio link stdout carries the device stream.
func setupLogging(level int) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1, 2:
		// Level 2 additionally enables per-block tracing in serve
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}
