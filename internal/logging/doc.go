// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"session": "debug",  // Per-module overrides
//			"api":     "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("session")
//	logger.Info("Capture started", "device_id", id)
//	logger.Debug("Details", "capability", cap)
//	logger.Warn("Something unusual", "error", err)
//	logger.Error("Failed", "error", err)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("session").With("device_id", id)
//	logger.Info("Capture started")  // Includes device_id in all logs
//
// # Output Destinations
//
// The system automatically detects available outputs. When both the
// journal and stdout are available, records fan out to both; otherwise
// whichever destination exists gets the record directly (JournalHandler,
// or a text/JSON handler on stdout).
//
// Journal availability is checked via [github.com/coreos/go-systemd/v22/journal.Enabled].
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t camlink              # All camlink logs
//	journalctl -t camlink -f           # Follow live
//	journalctl -t camlink --since "5m" # Last 5 minutes
//	journalctl -t camlink -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t camlink MODULE=session
//	journalctl -t camlink DEVICE_ID=usb-0000:00:14.0-1-video-index0
//
// # Configuration
//
// Log levels can be set globally or per-module. Module-specific levels
// override the global level for that module only.
//
// In the TOML config file all logging keys live in one flat [logging]
// table: "level" and "format" are reserved, every other key names a
// module and its level.
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	session = "debug"
//	catalog = "info"
//	api = "warn"
package logging
