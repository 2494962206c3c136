package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/micstream/internal/audio"
	"github.com/audiolibrelab/micstream/internal/config"
	"github.com/audiolibrelab/micstream/internal/engine"
	"github.com/audiolibrelab/micstream/internal/link"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the acquisition engine on the configured link",
	Long: `Run the device side: acquire from the configured source and answer
single-character commands on the link.

  r  record a fixed-length clip of raw PCM
  d  print decoded samples, one per line, until any byte arrives
  l  stream raw PCM live until any byte arrives

With the default stdio link the stream is written to stdout, so logs go to
stderr. Use --link tcp://:7070 to serve a host over the network.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("link"); addr != "" {
			cfg.Link.Address = addr
		}
		if kind, _ := cmd.Flags().GetString("source"); kind != "" {
			cfg.Source.Kind = kind
		}
		if cmd.Flags().Changed("cancellable") {
			cfg.Recording.Cancellable, _ = cmd.Flags().GetBool("cancellable")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("MicStream device starting",
		"profile", cfg.Profile, "source", cfg.Source.Kind, "link", cfg.Link.Address,
		"sample_rate", cfg.Device.SampleRate, "bit_depth", cfg.Device.BitDepth, "shift", cfg.Device.ShiftAmount)

	conn, err := link.Open(ctx, cfg.Link.Address, cfg.Link.Baud, link.RoleDevice)
	if err != nil {
		return fmt.Errorf("failed to open link: %w", err)
	}
	defer conn.Close()

	sink := engine.NewSink(conn)

	// Initialization failures are reported once on the link and are fatal
	source, err := audio.NewSource(cfg)
	if err != nil {
		slog.Error("Failed to initialize audio source", "kind", cfg.Source.Kind, "error", err)
		_ = sink.WriteLine(engine.LineInitFailed + ": " + err.Error())
		return fmt.Errorf("failed to initialize audio source: %w", err)
	}
	defer source.Close()

	m := engine.New(source, sink, engine.NewControlReader(conn), engine.Options{
		Format:               audio.FormatFromConfig(cfg),
		DurationSeconds:      cfg.Recording.DurationSeconds,
		CancellableRecording: cfg.Recording.Cancellable,
		TraceBlocks:          verboseLevel >= 2,
	})

	if err := m.Announce(); err != nil {
		return err
	}
	slog.Info("Acquisition ready", "record_budget_bytes", m.RecordBudget())

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return m.Run(gctx)
	})
	g.Go(func() error {
		// Closing the link unblocks a write stalled on a slow reader
		<-gctx.Done()
		return closeQuietly(conn)
	})

	err = g.Wait()
	stats := m.Stats()
	slog.Info("MicStream device stopped",
		"recordings", stats.Recordings, "streams", stats.Streams, "prints", stats.Prints,
		"ignored_commands", stats.Ignored, "transient_skips", stats.TransientSkips,
		"payload_bytes", stats.PayloadBytes)

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("engine failed: %w", err)
	}
	return nil
}

func closeQuietly(c io.Closer) error {
	if err := c.Close(); err != nil {
		slog.Debug("Link close failed", "error", err)
	}
	return nil
}

func init() {
	serveCmd.Flags().String("link", "", "link address: stdio, tcp://host:port or serial:///dev/ttyUSB0 (overrides config)")
	serveCmd.Flags().String("source", "", "acquisition source: tone, portaudio or file (overrides config)")
	serveCmd.Flags().Bool("cancellable", false, "let any byte end a recording early")
}
