//go:build !(linux && (amd64 || arm64))

// Package v4l2 is only implemented for 64-bit Linux; everywhere else it
// reports ErrUnsupported so callers can fall back to another backend.
package v4l2

import (
	"log/slog"

	"github.com/smazurov/camlink/internal/backend"
)

// Backend is the unsupported-platform stub.
type Backend struct{}

// New creates the stub backend.
func New(_ *slog.Logger) *Backend { return &Backend{} }

// Name identifies the backend implementation.
func (b *Backend) Name() string { return "v4l2" }

// Devices always fails with ErrUnsupported on this platform.
func (b *Backend) Devices() ([]backend.DeviceInfo, error) {
	return nil, backend.ErrUnsupported
}

// Open always fails with ErrUnsupported on this platform.
func (b *Backend) Open(path string) (backend.Device, error) {
	return nil, backend.ErrUnsupported
}
