// Package backend defines the seam between camlink and the platform's
// native capture subsystem. A Backend enumerates devices and opens them;
// an open Device reports capability entries, accepts one active capability,
// and pushes raw frames to subscribed callbacks once streaming starts.
//
// camlink consumes exactly these operations and nothing else; decoding,
// driver communication and buffer management stay on the backend's side of
// the seam.
package backend

import (
	"errors"

	"github.com/smazurov/camlink/internal/frame"
)

// Sentinel errors shared by all backend implementations.
var (
	// ErrDeviceNotFound means a selector resolved to no device.
	ErrDeviceNotFound = errors.New("backend: device not found")

	// ErrDeviceUnavailable means the backend refused to open or start the
	// device (busy, unplugged mid-open, permission denied).
	ErrDeviceUnavailable = errors.New("backend: device unavailable")

	// ErrUnsupported means the backend is not implemented on this platform.
	ErrUnsupported = errors.New("backend: not supported on this platform")
)

// DeviceInfo describes one enumerated capture device.
type DeviceInfo struct {
	// Path is the platform device path, e.g. /dev/video0. Paths can shift
	// between enumerations.
	Path string

	// Name is the human-readable device name reported by the driver.
	Name string

	// ID is the stable identity of the device. Two descriptors refer to the
	// same physical device iff their IDs are equal.
	ID string
}

// Capability is one backend-reported combination of resolution and frame
// rate a device supports.
type Capability struct {
	Width       int
	Height      int
	FrameRate   float64
	PixelFormat frame.Format
}

// FrameFunc receives one raw frame from the backend. The data slice is owned
// by the caller of the callback only for the duration of the call unless the
// backend documents otherwise; camlink copies ownership into a refcounted
// buffer before fanning out.
type FrameFunc func(data []byte, width, height int, format frame.Format)

// Backend enumerates and opens capture devices.
type Backend interface {
	// Name identifies the backend implementation, e.g. "v4l2" or "sim".
	Name() string

	// Devices enumerates all currently available capture devices in platform
	// order. Enumeration failure is an error, never an empty list.
	Devices() ([]DeviceInfo, error)

	// Open opens the device at the given path. Returns ErrDeviceNotFound if
	// no such device exists and ErrDeviceUnavailable if it cannot be opened.
	Open(path string) (Device, error)
}

// Device is an open capture device handle. A Device is owned by exactly one
// session at a time; implementations are not required to tolerate concurrent
// sessions sharing a handle.
type Device interface {
	// Info returns the descriptor this device was opened from.
	Info() DeviceInfo

	// Capabilities lists every capability entry the device reports, in the
	// order the backend reports them.
	Capabilities() ([]Capability, error)

	// SetCapability selects the active capability before streaming starts.
	SetCapability(c Capability) error

	// Subscribe registers a frame callback and returns its unsubscribe
	// function. Multiple subscriptions are invoked in registration order.
	Subscribe(fn FrameFunc) (func(), error)

	// Start begins streaming frames to subscribed callbacks.
	Start() error

	// Stop signals the backend to halt streaming. Stopping a device that is
	// not streaming is a no-op, not an error.
	Stop() error

	// Close releases the device handle. Implies Stop. Safe to call more
	// than once.
	Close() error
}
