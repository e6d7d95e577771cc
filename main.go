package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/camlink/cmd"
	"github.com/smazurov/camlink/internal/api"
	"github.com/smazurov/camlink/internal/backend"
	"github.com/smazurov/camlink/internal/backend/sim"
	"github.com/smazurov/camlink/internal/backend/v4l2"
	"github.com/smazurov/camlink/internal/catalog"
	"github.com/smazurov/camlink/internal/config"
	"github.com/smazurov/camlink/internal/events"
	"github.com/smazurov/camlink/internal/hotplug"
	"github.com/smazurov/camlink/internal/logging"
	"github.com/smazurov/camlink/internal/metrics"
	"github.com/smazurov/camlink/internal/session"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8080" toml:"server.port" env:"SERVER_PORT"`

	// Capture settings
	CaptureBackend string `help:"Capture backend (v4l2, sim)" default:"v4l2" toml:"capture.backend" env:"CAPTURE_BACKEND"`
	CaptureDevice  string `help:"Device ID to capture from at startup (empty = no autostart)" default:"" toml:"capture.device" env:"CAPTURE_DEVICE"`

	// Metrics settings
	MetricsEnabled bool `help:"Expose Prometheus metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSession string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingCatalog string `help:"Catalog logging level" default:"info" toml:"logging.catalog" env:"LOGGING_CATALOG"`
	LoggingV4L2    string `help:"V4L2 backend logging level" default:"info" toml:"logging.v4l2" env:"LOGGING_V4L2"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"session": opts.LoggingSession,
				"catalog": opts.LoggingCatalog,
				"v4l2":    opts.LoggingV4L2,
				"api":     opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		var captureBackend backend.Backend
		if opts.CaptureBackend == "sim" {
			captureBackend = sim.New()
		} else {
			captureBackend = v4l2.New(logging.GetLogger("v4l2"))
		}

		eventBus := events.New()
		m := metrics.New()
		cat := catalog.New(captureBackend, eventBus, logging.GetLogger("catalog"))
		sess := session.New(captureBackend, eventBus, m, logging.GetLogger("session"))

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Backend:      captureBackend,
			Catalog:      cat,
			Session:      sess,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = m.Handler()
		}
		server := api.NewServer(apiOpts)
		hotplugMonitor := hotplug.NewMonitor(cat, logging.GetLogger("hotplug"))

		// Keep the device gauge current as hotplug refreshes churn the catalog
		eventBus.Subscribe(func(_ events.DeviceDiscoveryEvent) {
			if devices, listErr := cat.List(); listErr == nil {
				m.DevicesKnown.Set(float64(len(devices)))
			}
		})

		// Watch the config file so logging levels can change without restart
		var watcher *config.Watcher[logging.Config]
		if opts.Config != "" {
			if _, statErr := os.Stat(opts.Config); statErr == nil {
				watcher = config.NewConfigWatcher(
					opts.Config,
					func(path string) (logging.Config, error) {
						return config.LoadLoggingConfig(path), nil
					},
					logger,
				)
				watcher.OnReload(func(cfg logging.Config) {
					logging.Initialize(cfg)
					logger.Info("Logging configuration reloaded")
				})
			}
		}

		hooks.OnStart(func() {
			if watcher != nil {
				if watchErr := watcher.Start(); watchErr != nil {
					logger.Warn("Failed to start config watcher, hot-reload disabled", "error", watchErr)
				}
			}

			if devices, listErr := cat.List(); listErr != nil {
				logger.Warn("Initial device enumeration failed", "error", listErr)
			} else {
				m.DevicesKnown.Set(float64(len(devices)))
			}
			if hotplugErr := hotplugMonitor.Start(); hotplugErr != nil {
				logger.Warn("Hotplug monitoring unavailable", "error", hotplugErr)
			}

			if opts.CaptureDevice != "" {
				if info, resolveErr := cat.ResolveID(opts.CaptureDevice); resolveErr != nil {
					logger.Warn("Autostart device not found", "device_id", opts.CaptureDevice, "error", resolveErr)
				} else if bindErr := sess.Bind(info); bindErr != nil {
					logger.Warn("Failed to bind autostart device", "error", bindErr)
				} else if result, startErr := sess.Start(context.Background()); startErr != nil {
					logger.Warn("Failed to start autostart capture", "error", startErr)
				} else {
					go func() {
						if asyncErr := <-result; asyncErr != nil {
							logger.Error("Autostart capture failed", "device_id", info.ID, "error", asyncErr)
						}
					}()
				}
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			sess.Close()
			hotplugMonitor.Stop()
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateCaptureCmd())

	cli.Run()
}
