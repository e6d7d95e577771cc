// Package cmd provides the camlink CLI subcommands.
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/camlink/internal/backend"
	"github.com/smazurov/camlink/internal/backend/sim"
	"github.com/smazurov/camlink/internal/backend/v4l2"
	"github.com/smazurov/camlink/internal/catalog"
	"github.com/smazurov/camlink/internal/logging"
)

// selectBackend picks the capture backend for CLI commands.
func selectBackend(useSim bool) backend.Backend {
	if useSim {
		return sim.New()
	}
	return v4l2.New(logging.GetLogger("v4l2"))
}

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var useSim bool
	var showCaps bool
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Long:  `Enumerates capture devices and prints their stable IDs, paths and names. With --capabilities, also probes each device for its supported resolutions and frame rates.`,
		Run: func(_ *cobra.Command, _ []string) {
			loggingConfig := logging.Config{Level: "warn", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("devices")

			b := selectBackend(useSim)
			cat := catalog.New(b, nil, logger)

			devices, err := cat.List()
			if err != nil {
				logger.Error("Failed to enumerate devices", "error", err)
				os.Exit(1)
			}
			if len(devices) == 0 {
				fmt.Println("No capture devices found")
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPATH\tNAME")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Path, d.Name)
			}
			w.Flush()

			if !showCaps {
				return
			}
			for _, d := range devices {
				fmt.Printf("\n%s:\n", d.ID)
				dev, openErr := b.Open(d.Path)
				if openErr != nil {
					fmt.Printf("  (unavailable: %v)\n", openErr)
					continue
				}
				caps, capsErr := dev.Capabilities()
				dev.Close()
				if capsErr != nil {
					fmt.Printf("  (capability probe failed: %v)\n", capsErr)
					continue
				}
				for _, c := range caps {
					fmt.Printf("  %dx%d @ %g fps (%s)\n", c.Width, c.Height, c.FrameRate, c.PixelFormat)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&useSim, "sim", false, "Use the simulated backend instead of V4L2")
	cmd.Flags().BoolVar(&showCaps, "capabilities", false, "Probe each device for capability entries")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}
