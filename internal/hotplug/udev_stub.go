//go:build !(linux && cgo)

package hotplug

import (
	"log/slog"

	"github.com/smazurov/camlink/internal/backend"
)

// Refresher is the part of the catalog the monitor drives.
type Refresher interface {
	Refresh() ([]backend.DeviceInfo, error)
}

// Monitor is inert on platforms without udev support.
type Monitor struct{}

// NewMonitor returns a monitor that does nothing.
func NewMonitor(catalog Refresher, logger *slog.Logger) *Monitor {
	return &Monitor{}
}

// Start is a no-op without udev support.
func (m *Monitor) Start() error { return nil }

// Stop is a no-op without udev support.
func (m *Monitor) Stop() {}
