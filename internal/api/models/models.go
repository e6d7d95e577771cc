// Package models holds the request and response bodies of the HTTP API.
package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-06-01T00:00:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Build platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Device models
type DeviceInfo struct {
	DeviceID   string `json:"device_id" example:"usb-0000:00:14.0-1-video-index0" doc:"Stable device identifier"`
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Platform device path (may shift between refreshes)"`
	DeviceName string `json:"device_name" example:"HD Pro Webcam C920" doc:"Driver-reported device name"`
}

type DeviceData struct {
	Devices []DeviceInfo `json:"devices" doc:"Known capture devices"`
	Count   int          `json:"count" example:"2" doc:"Number of devices"`
}

type DeviceResponse struct {
	Body DeviceData
}

// Capability models
type CapabilityInfo struct {
	Width       int     `json:"width" example:"1920" doc:"Frame width in pixels"`
	Height      int     `json:"height" example:"1080" doc:"Frame height in pixels"`
	FrameRate   float64 `json:"frame_rate" example:"30" doc:"Frames per second"`
	PixelFormat string  `json:"pixel_format" example:"yuyv" doc:"Pixel format name"`
}

type DeviceCapabilitiesData struct {
	DeviceID     string           `json:"device_id" doc:"Stable device identifier"`
	Capabilities []CapabilityInfo `json:"capabilities" doc:"Capability entries in backend order"`
}

type DeviceCapabilitiesResponse struct {
	Body DeviceCapabilitiesData
}

// Session models
type SessionStatusData struct {
	State           string          `json:"state" example:"running" doc:"Session state: idle, starting, running, stopping"`
	DeviceID        string          `json:"device_id,omitempty" doc:"Bound device identifier"`
	DeviceName      string          `json:"device_name,omitempty" doc:"Bound device name"`
	Capability      *CapabilityInfo `json:"capability,omitempty" doc:"Active capability while running"`
	FramesDelivered uint64          `json:"frames_delivered" doc:"Frames delivered to consumers since start"`
	FramesSkipped   uint64          `json:"frames_skipped" doc:"Frames dropped with no consumers attached"`
}

type SessionStatusResponse struct {
	Body SessionStatusData
}

type SessionStartBody struct {
	DeviceID string `json:"device_id,omitempty" example:"usb-0000:00:14.0-1-video-index0" doc:"Device to capture from; defaults to the first known device"`
}

type SessionStartInput struct {
	Body SessionStartBody
}

type SessionActionData struct {
	Status  string `json:"status" example:"ok" doc:"Action outcome"`
	Message string `json:"message,omitempty" doc:"Detail message"`
}

type SessionActionResponse struct {
	Body SessionActionData
}

// Preview fit models
type PreviewSizeData struct {
	Width  int `json:"width" example:"1280" doc:"Fitted width in pixels"`
	Height int `json:"height" example:"720" doc:"Fitted height in pixels"`
}

type PreviewSizeResponse struct {
	Body PreviewSizeData
}
