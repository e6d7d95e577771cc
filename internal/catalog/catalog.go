// Package catalog maintains the last known snapshot of capture devices.
//
// The catalog is an explicit, constructor-owned cache rather than ambient
// package state: callers enumerate once, read the cached snapshot cheaply,
// and refresh on demand. Enumeration failure always surfaces as an error,
// never as an empty list, so "no cameras" and "enumeration broken" stay
// distinguishable.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/camlink/internal/backend"
	"github.com/smazurov/camlink/internal/events"
)

// ErrDeviceNotFound is returned when a selector resolves to no device in
// the current snapshot.
var ErrDeviceNotFound = errors.New("catalog: device not found")

// Catalog caches the device list of one backend.
type Catalog struct {
	backend  backend.Backend
	eventBus *events.Bus
	logger   *slog.Logger

	mu       sync.RWMutex
	snapshot []backend.DeviceInfo
	loaded   bool
}

// New creates a catalog over the given backend. eventBus may be nil; when
// set, refreshes publish DeviceDiscoveryEvents for observed changes.
func New(b backend.Backend, eventBus *events.Bus, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		backend:  b,
		eventBus: eventBus,
		logger:   logger,
	}
}

// List returns the cached device snapshot, enumerating on first use. The
// returned slice is a copy; callers may keep it.
func (c *Catalog) List() ([]backend.DeviceInfo, error) {
	c.mu.RLock()
	if c.loaded {
		devices := make([]backend.DeviceInfo, len(c.snapshot))
		copy(devices, c.snapshot)
		c.mu.RUnlock()
		return devices, nil
	}
	c.mu.RUnlock()

	return c.Refresh()
}

// Refresh re-enumerates and replaces the cached snapshot wholesale. On
// enumeration failure the previous snapshot is kept and the error returned.
func (c *Catalog) Refresh() ([]backend.DeviceInfo, error) {
	devices, err := c.backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	c.mu.Lock()
	previous := c.snapshot
	wasLoaded := c.loaded
	c.snapshot = devices
	c.loaded = true
	c.mu.Unlock()

	c.logger.Debug("Device snapshot refreshed", "count", len(devices))

	if c.eventBus != nil && wasLoaded {
		c.publishDiff(previous, devices)
	}

	result := make([]backend.DeviceInfo, len(devices))
	copy(result, devices)
	return result, nil
}

// publishDiff emits added/removed discovery events by comparing stable IDs
// across two snapshots.
func (c *Catalog) publishDiff(previous, current []backend.DeviceInfo) {
	timestamp := time.Now().Format(time.RFC3339)

	known := make(map[string]bool, len(previous))
	for _, d := range previous {
		known[d.ID] = true
	}
	seen := make(map[string]bool, len(current))
	for _, d := range current {
		seen[d.ID] = true
		if !known[d.ID] {
			c.logger.Info("Device added", "device_id", d.ID, "name", d.Name)
			c.eventBus.Publish(events.DeviceDiscoveryEvent{Device: d, Action: "added", Timestamp: timestamp})
		}
	}
	for _, d := range previous {
		if !seen[d.ID] {
			c.logger.Info("Device removed", "device_id", d.ID, "name", d.Name)
			c.eventBus.Publish(events.DeviceDiscoveryEvent{Device: d, Action: "removed", Timestamp: timestamp})
		}
	}
}

// ResolveIndex returns the descriptor at the given position in the current
// snapshot. Indices are a convenience for UIs; they can shift between
// refreshes, so identity checks must use the ID.
func (c *Catalog) ResolveIndex(index int) (backend.DeviceInfo, error) {
	devices, err := c.List()
	if err != nil {
		return backend.DeviceInfo{}, err
	}
	if index < 0 || index >= len(devices) {
		return backend.DeviceInfo{}, fmt.Errorf("%w: index %d of %d devices", ErrDeviceNotFound, index, len(devices))
	}
	return devices[index], nil
}

// ResolveID returns the descriptor with the given stable device ID.
func (c *Catalog) ResolveID(id string) (backend.DeviceInfo, error) {
	devices, err := c.List()
	if err != nil {
		return backend.DeviceInfo{}, err
	}
	for _, d := range devices {
		if d.ID == id {
			return d, nil
		}
	}
	return backend.DeviceInfo{}, fmt.Errorf("%w: id %s", ErrDeviceNotFound, id)
}
