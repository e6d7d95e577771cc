package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camlink/internal/api/models"
	"github.com/smazurov/camlink/internal/backend"
	"github.com/smazurov/camlink/internal/catalog"
)

// DevicePathInput carries the stable device identifier path parameter.
type DevicePathInput struct {
	DeviceID string `path:"device_id" example:"usb-0000:00:14.0-1-video-index0" doc:"Stable device identifier"`
}

func toDeviceInfo(d backend.DeviceInfo) models.DeviceInfo {
	return models.DeviceInfo{
		DeviceID:   d.ID,
		DevicePath: d.Path,
		DeviceName: d.Name,
	}
}

func toDeviceData(devices []backend.DeviceInfo) models.DeviceData {
	infos := make([]models.DeviceInfo, len(devices))
	for i, d := range devices {
		infos[i] = toDeviceInfo(d)
	}
	return models.DeviceData{Devices: infos, Count: len(infos)}
}

// registerDeviceRoutes registers all device-related endpoints
func (s *Server) registerDeviceRoutes() {
	// List all devices from the cached snapshot
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List all known capture devices from the cached snapshot",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*models.DeviceResponse, error) {
		devices, err := s.catalog.List()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to enumerate devices", err)
		}
		return &models.DeviceResponse{Body: toDeviceData(devices)}, nil
	})

	// Re-enumerate and replace the snapshot
	huma.Register(s.api, huma.Operation{
		OperationID: "refresh-devices",
		Method:      http.MethodPost,
		Path:        "/api/devices/refresh",
		Summary:     "Refresh Devices",
		Description: "Re-enumerate devices and replace the cached snapshot",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*models.DeviceResponse, error) {
		devices, err := s.catalog.Refresh()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to refresh devices", err)
		}
		return &models.DeviceResponse{Body: toDeviceData(devices)}, nil
	})

	// List capability entries of one device
	huma.Register(s.api, huma.Operation{
		OperationID: "device-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device_id}/capabilities",
		Summary:     "Capabilities",
		Description: "List resolution and frame rate combinations the device reports",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(ctx context.Context, input *DevicePathInput) (*models.DeviceCapabilitiesResponse, error) {
		info, err := s.catalog.ResolveID(input.DeviceID)
		if err != nil {
			if errors.Is(err, catalog.ErrDeviceNotFound) {
				return nil, huma.Error404NotFound("Device not found", err)
			}
			return nil, huma.Error500InternalServerError("Failed to resolve device", err)
		}

		dev, err := s.backend.Open(info.Path)
		if err != nil {
			if errors.Is(err, backend.ErrDeviceNotFound) {
				return nil, huma.Error404NotFound("Device not found", err)
			}
			return nil, huma.Error500InternalServerError("Failed to open device", err)
		}
		defer dev.Close()

		caps, err := dev.Capabilities()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to read capabilities", err)
		}

		entries := make([]models.CapabilityInfo, len(caps))
		for i, c := range caps {
			entries[i] = models.CapabilityInfo{
				Width:       c.Width,
				Height:      c.Height,
				FrameRate:   c.FrameRate,
				PixelFormat: string(c.PixelFormat),
			}
		}
		return &models.DeviceCapabilitiesResponse{
			Body: models.DeviceCapabilitiesData{
				DeviceID:     info.ID,
				Capabilities: entries,
			},
		}, nil
	})
}
