package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camlink/internal/backend"
	"github.com/smazurov/camlink/internal/catalog"
	"github.com/smazurov/camlink/internal/events"
	"github.com/smazurov/camlink/internal/frame"
	"github.com/smazurov/camlink/internal/logging"
	"github.com/smazurov/camlink/internal/session"
)

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	var useSim bool
	var deviceID string
	var duration time.Duration
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run a capture session from the terminal",
		Long: `Starts a capture session on the selected device, counts incoming frames ` +
			`and reports delivery statistics. Runs until the duration elapses or the ` +
			`process receives SIGINT/SIGTERM.`,
		Run: func(_ *cobra.Command, _ []string) {
			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("capture")

			b := selectBackend(useSim)
			bus := events.New()
			cat := catalog.New(b, bus, logger)

			target, err := resolveTarget(cat, deviceID)
			if err != nil {
				logger.Error("Failed to resolve device", "device_id", deviceID, "error", err)
				os.Exit(1)
			}

			sess := session.New(b, bus, nil, logger)
			defer sess.Close()

			// The terminal counter takes the render slot so it sees each
			// frame ahead of any other consumer
			var frames uint64
			var lastSeq uint64
			sess.SetRenderTarget(func(ev *frame.Event) {
				frames++
				lastSeq = ev.Sequence()
				ev.Release()
			})
			defer sess.SetRenderTarget(nil)

			if err := sess.Bind(target); err != nil {
				logger.Error("Failed to bind device", "error", err)
				os.Exit(1)
			}

			result, err := sess.Start(context.Background())
			if err != nil {
				logger.Error("Failed to start capture", "error", err)
				os.Exit(1)
			}
			if startupErr := <-result; startupErr != nil {
				logger.Error("Capture startup failed", "error", startupErr)
				os.Exit(1)
			}

			active, _ := sess.ActiveCapability()
			logger.Info("Capturing",
				"device_id", target.ID,
				"width", active.Width, "height", active.Height,
				"fps", active.FrameRate)

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-time.After(duration):
			case sig := <-sigs:
				logger.Info("Signal received, stopping", "signal", sig.String())
			}

			if err := sess.Stop(); err != nil {
				logger.Warn("Error stopping capture", "error", err)
			}

			delivered, skipped := sess.Stats()
			fmt.Printf("frames received: %d (last sequence %d)\n", frames, lastSeq)
			fmt.Printf("delivered: %d, skipped: %d\n", delivered, skipped)
		},
	}

	cmd.Flags().BoolVar(&useSim, "sim", false, "Use the simulated backend instead of V4L2")
	cmd.Flags().StringVar(&deviceID, "device", "", "Stable device ID (defaults to the first device)")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "How long to capture")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}

// resolveTarget picks the capture device: by ID when given, otherwise the
// first enumerated device.
func resolveTarget(cat *catalog.Catalog, deviceID string) (backend.DeviceInfo, error) {
	if deviceID != "" {
		return cat.ResolveID(deviceID)
	}
	return cat.ResolveIndex(0)
}
