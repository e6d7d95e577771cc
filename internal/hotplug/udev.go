//go:build linux && cgo

// Package hotplug refreshes the device catalog when USB hardware changes.
package hotplug

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jochenvg/go-udev"

	"github.com/smazurov/camlink/internal/backend"
)

// Refresher is the part of the catalog the monitor drives.
type Refresher interface {
	Refresh() ([]backend.DeviceInfo, error)
}

// Monitor watches udev netlink events for USB devices and triggers a
// catalog refresh when hardware is plugged or unplugged. The catalog
// itself diffs snapshots and publishes discovery events, so the monitor
// only has to decide when to look again.
type Monitor struct {
	ctx     context.Context
	cancel  context.CancelFunc
	catalog Refresher
	logger  *slog.Logger

	// settleDelay gives the kernel time to enumerate video nodes after a
	// USB add event before the catalog re-scans.
	settleDelay time.Duration
}

// NewMonitor creates a udev hotplug monitor for the given catalog.
func NewMonitor(catalog Refresher, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		ctx:         ctx,
		cancel:      cancel,
		catalog:     catalog,
		logger:      logger,
		settleDelay: 1 * time.Second,
	}
}

// Start begins listening for USB add/remove events. It returns an error
// if the netlink monitor cannot be created.
func (m *Monitor) Start() error {
	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if mon == nil {
		return fmt.Errorf("failed to create udev monitor")
	}

	mon.FilterAddMatchSubsystemDevtype("usb", "usb_device")

	deviceCh, errCh, err := mon.DeviceChan(m.ctx)
	if err != nil {
		return fmt.Errorf("failed to get udev device channel: %w", err)
	}

	go func() {
		for monErr := range errCh {
			m.logger.Warn("Udev monitor error", "error", monErr)
		}
	}()

	go func() {
		m.logger.Info("Udev hotplug monitoring started")
		for {
			select {
			case <-m.ctx.Done():
				m.logger.Debug("Udev monitor stopped")
				return
			case dev, ok := <-deviceCh:
				if !ok {
					m.logger.Debug("Udev device channel closed")
					return
				}

				action := dev.Action()
				if action != "add" && action != "remove" {
					continue
				}
				m.logger.Debug("Udev event",
					"action", action,
					"syspath", dev.Syspath(),
					"subsystem", dev.Subsystem())

				if action == "add" {
					select {
					case <-time.After(m.settleDelay):
					case <-m.ctx.Done():
						return
					}
				}

				if _, refreshErr := m.catalog.Refresh(); refreshErr != nil {
					m.logger.Warn("Device refresh after hotplug failed", "error", refreshErr)
				}
			}
		}
	}()

	return nil
}

// Stop shuts down the monitor goroutines.
func (m *Monitor) Stop() {
	m.cancel()
}
