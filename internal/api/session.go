package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camlink/internal/api/models"
	"github.com/smazurov/camlink/internal/aspect"
	"github.com/smazurov/camlink/internal/backend"
	"github.com/smazurov/camlink/internal/catalog"
	"github.com/smazurov/camlink/internal/session"
)

// PreviewSizeInput carries the container dimensions for preview fitting.
type PreviewSizeInput struct {
	Width  int `query:"width" minimum:"1" example:"1600" doc:"Container width in pixels"`
	Height int `query:"height" minimum:"1" example:"900" doc:"Container height in pixels"`
}

// resolveStartTarget picks the device for a start or switch request. An
// empty ID means the first device in the snapshot.
func (s *Server) resolveStartTarget(deviceID string) (backend.DeviceInfo, error) {
	if deviceID == "" {
		return s.catalog.ResolveIndex(0)
	}
	return s.catalog.ResolveID(deviceID)
}

// registerSessionRoutes registers the capture session endpoints.
func (s *Server) registerSessionRoutes() {
	// Session status
	huma.Register(s.api, huma.Operation{
		OperationID: "session-status",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Summary:     "Session Status",
		Description: "Report the capture session state, bound device and frame counters",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.SessionStatusResponse, error) {
		data := models.SessionStatusData{
			State: s.session.State().String(),
		}
		if info, bound := s.session.Device(); bound {
			data.DeviceID = info.ID
			data.DeviceName = info.Name
		}
		if cap, err := s.session.ActiveCapability(); err == nil {
			data.Capability = &models.CapabilityInfo{
				Width:       cap.Width,
				Height:      cap.Height,
				FrameRate:   cap.FrameRate,
				PixelFormat: string(cap.PixelFormat),
			}
		}
		data.FramesDelivered, data.FramesSkipped = s.session.Stats()
		return &models.SessionStatusResponse{Body: data}, nil
	})

	// Start capture
	huma.Register(s.api, huma.Operation{
		OperationID:   "session-start",
		Method:        http.MethodPost,
		Path:          "/api/session/start",
		Summary:       "Start Capture",
		Description:   "Bind the session to a device and start capturing. Fails with 409 when a session is already active.",
		Tags:          []string{"session"},
		DefaultStatus: http.StatusAccepted,
		Security:      withAuth(),
		Errors:        []int{401, 404, 409, 500},
	}, func(ctx context.Context, input *models.SessionStartInput) (*models.SessionActionResponse, error) {
		info, err := s.resolveStartTarget(input.Body.DeviceID)
		if err != nil {
			if errors.Is(err, catalog.ErrDeviceNotFound) {
				return nil, huma.Error404NotFound("Device not found", err)
			}
			return nil, huma.Error500InternalServerError("Failed to resolve device", err)
		}
		if err := s.session.Bind(info); err != nil {
			return nil, huma.Error409Conflict("Capture already running", err)
		}

		result, err := s.session.Start(context.Background())
		if err != nil {
			if errors.Is(err, session.ErrAlreadyRunning) {
				return nil, huma.Error409Conflict("Capture already running", err)
			}
			return nil, huma.Error500InternalServerError("Failed to start capture", err)
		}

		// Surface the async outcome on the event bus; the request only
		// acknowledges that startup began
		go func() {
			if startupErr := <-result; startupErr != nil {
				s.logger.Error("Capture startup failed", "device_id", info.ID, "error", startupErr)
			}
		}()

		return &models.SessionActionResponse{
			Body: models.SessionActionData{
				Status:  "accepted",
				Message: "Capture starting on " + info.ID,
			},
		}, nil
	})

	// Stop capture
	huma.Register(s.api, huma.Operation{
		OperationID: "session-stop",
		Method:      http.MethodPost,
		Path:        "/api/session/stop",
		Summary:     "Stop Capture",
		Description: "Stop the capture session. Stopping an idle session is a no-op.",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*models.SessionActionResponse, error) {
		if err := s.session.Stop(); err != nil {
			return nil, huma.Error500InternalServerError("Failed to stop capture", err)
		}
		return &models.SessionActionResponse{
			Body: models.SessionActionData{Status: "ok", Message: "Capture stopped"},
		}, nil
	})

	// Switch device
	huma.Register(s.api, huma.Operation{
		OperationID: "session-switch-device",
		Method:      http.MethodPost,
		Path:        "/api/session/device",
		Summary:     "Switch Device",
		Description: "Stop the current capture, rebind to another device and start again",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 500},
	}, func(ctx context.Context, input *models.SessionStartInput) (*models.SessionActionResponse, error) {
		info, err := s.resolveStartTarget(input.Body.DeviceID)
		if err != nil {
			if errors.Is(err, catalog.ErrDeviceNotFound) {
				return nil, huma.Error404NotFound("Device not found", err)
			}
			return nil, huma.Error500InternalServerError("Failed to resolve device", err)
		}

		if s.session.Matches(info) && s.session.State() == session.StateRunning {
			return &models.SessionActionResponse{
				Body: models.SessionActionData{Status: "ok", Message: "Already capturing " + info.ID},
			}, nil
		}

		if err := s.session.ChangeDevice(ctx, info); err != nil {
			return nil, huma.Error500InternalServerError("Failed to switch device", err)
		}
		return &models.SessionActionResponse{
			Body: models.SessionActionData{Status: "ok", Message: "Capturing " + info.ID},
		}, nil
	})

	// Preview size helper for UI layout
	huma.Register(s.api, huma.Operation{
		OperationID: "session-preview-size",
		Method:      http.MethodGet,
		Path:        "/api/session/preview-size",
		Summary:     "Preview Size",
		Description: "Compute the largest box inside the given container that preserves the active capture aspect ratio. Falls back to 16:9 when no capture is running.",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(ctx context.Context, input *PreviewSizeInput) (*models.PreviewSizeResponse, error) {
		ratioW, ratioH := 16, 9
		if cap, err := s.session.ActiveCapability(); err == nil && cap.Height > 0 {
			ratioW, ratioH = cap.Width, cap.Height
		}

		fitted := aspect.FitInside(aspect.Size{Width: input.Width, Height: input.Height}, ratioW, ratioH)
		return &models.PreviewSizeResponse{
			Body: models.PreviewSizeData{Width: fitted.Width, Height: fitted.Height},
		}, nil
	})
}
