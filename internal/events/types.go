package events

import "github.com/smazurov/camlink/internal/backend"

// Event type constants for kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeCaptureError
	TypeDeviceDiscovery
	TypeFrameStats
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionStateChangedEvent is published on every capture session state
// transition, including the outcome of asynchronous startup.
type SessionStateChangedEvent struct {
	DeviceID  string `json:"device_id" example:"usb-0000:00:14.0-1-video-index0" doc:"Stable device identifier"`
	State     string `json:"state" example:"running" doc:"New session state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// CaptureErrorEvent is published when a session fails to start or loses its
// device. Startup failures are never swallowed; they surface here in
// addition to the Start result channel.
type CaptureErrorEvent struct {
	DeviceID  string `json:"device_id" example:"usb-0000:00:14.0-1-video-index0" doc:"Stable device identifier"`
	Stage     string `json:"stage" example:"negotiate" doc:"Startup stage that failed"`
	Error     string `json:"error" example:"device unavailable" doc:"Detailed error description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Error timestamp"`
}

// Type returns the event type identifier for CaptureErrorEvent.
func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }

// DeviceDiscoveryEvent is published when a catalog refresh observes a device
// appearing or disappearing.
type DeviceDiscoveryEvent struct {
	Device    backend.DeviceInfo `json:"device" doc:"Device that changed"`
	Action    string             `json:"action" example:"added" doc:"Action type: added, removed"`
	Timestamp string             `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceDiscoveryEvent.
func (e DeviceDiscoveryEvent) Type() uint32 { return TypeDeviceDiscovery }

// FrameStatsEvent carries periodic frame delivery counters from a running
// session.
type FrameStatsEvent struct {
	DeviceID  string  `json:"device_id" doc:"Stable device identifier"`
	Delivered uint64  `json:"delivered" doc:"Frames delivered since start"`
	Skipped   uint64  `json:"skipped" doc:"Frames skipped with no consumers"`
	FPS       float64 `json:"fps" doc:"Negotiated frame rate"`
}

// Type returns the event type identifier for FrameStatsEvent.
func (e FrameStatsEvent) Type() uint32 { return TypeFrameStats }
