package cmd

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/audiolibrelab/micstream/internal/audio"
	"github.com/audiolibrelab/micstream/internal/link"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List acquisition sources and serial ports",
	Long:  `List the source kinds, the PortAudio capture devices and the serial ports that can carry a device link.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Audio Sources (%s)\n", runtime.GOOS)
		fmt.Printf("=======================================\n\n")

		fmt.Printf("Source kinds:")
		for _, kind := range audio.GetAvailableKinds() {
			marker := ""
			if string(kind) == cfg.Source.Kind {
				marker = " (configured)"
			}
			fmt.Printf(" %s%s", kind, marker)
		}
		fmt.Printf("\n\n")

		devices, err := audio.ListDevices()
		if err != nil {
			slog.Warn("Could not list PortAudio devices", "error", err)
		} else {
			fmt.Printf("PORTAUDIO INPUT DEVICES (%d found):\n", len(devices))
			for i, dev := range devices {
				marker := ""
				if dev.IsDefault {
					marker = " [default]"
				}
				fmt.Printf("  %d. %s (%s, %d ch, %.0f Hz)%s\n",
					i+1, dev.Name, dev.HostAPI, dev.MaxInputChannels, dev.DefaultSampleRate, marker)
			}
			fmt.Println()
		}

		ports, err := link.ListSerialPorts()
		if err != nil {
			slog.Warn("Could not list serial ports", "error", err)
			return nil
		}
		fmt.Printf("SERIAL PORTS (%d found):\n", len(ports))
		for i, port := range ports {
			fmt.Printf("  %d. %s\n", i+1, port)
		}

		fmt.Printf("\nUsage:\n")
		fmt.Printf("  - source.kind: portaudio, source.device: \"<device name>\"\n")
		fmt.Printf("  - link.address: serial://<port> with link.baud: %d\n", cfg.Link.Baud)

		return nil
	},
}
