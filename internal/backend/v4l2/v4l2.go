//go:build linux && (amd64 || arm64)

// Package v4l2 is a pure Go capture backend for Video4Linux2 devices. It
// enumerates devices through sysfs and VIDIOC_QUERYCAP, lists capability
// entries through the frame size and frame interval ioctls, and streams
// frames with memory-mapped buffers. No cgo, so cross-compilation for the
// usual Linux targets stays trivial.
package v4l2

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"github.com/smazurov/camlink/internal/backend"
)

// sysfsVideoClass is where the kernel registers video4linux devices.
const sysfsVideoClass = "/sys/class/video4linux"

// Backend enumerates and opens V4L2 video capture devices.
type Backend struct {
	logger   *slog.Logger
	sysfsDir string
}

// New creates the V4L2 backend.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{logger: logger, sysfsDir: sysfsVideoClass}
}

// Name identifies the backend implementation.
func (b *Backend) Name() string { return "v4l2" }

// Devices finds all V4L2 video capture devices on the system, in sysfs
// order. Devices that cannot be opened or probed are skipped, not fatal.
func (b *Backend) Devices() ([]backend.DeviceInfo, error) {
	// A missing class directory means the videodev driver is absent, so
	// enumeration cannot run at all; that surfaces as an error, never as
	// zero devices.
	entries, err := os.ReadDir(b.sysfsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	var devices []backend.DeviceInfo

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		devicePath := "/dev/" + entry.Name()

		fd, err := openDevice(devicePath)
		if err != nil {
			b.logger.Debug("failed to open video device", "path", devicePath, "error", err)
			continue
		}

		caps := v4l2Capability{}
		if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&caps)); err != nil {
			b.logger.Debug("failed to query device capabilities", "path", devicePath, "error", err)
			closeFd(fd)
			continue
		}
		closeFd(fd)

		effective := caps.capabilities
		if effective&v4l2CapDeviceCaps != 0 {
			effective = caps.deviceCaps
		}
		if effective&v4l2CapVideoCapture == 0 {
			continue
		}

		indexPath := filepath.Join(b.sysfsDir, entry.Name(), "index")
		indexValue := readSysfsInt(indexPath)

		stableID := findStableID(entry.Name(), indexValue)
		if stableID == "" {
			stableID = syntheticID(cstr(caps.busInfo[:]), indexValue)
		}

		devices = append(devices, backend.DeviceInfo{
			Path: devicePath,
			Name: cstr(caps.card[:]),
			ID:   stableID,
		})
	}

	return devices, nil
}

// Open opens a capture device by path.
func (b *Backend) Open(path string) (backend.Device, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", backend.ErrDeviceNotFound, path)
	}

	fd, err := openDevice(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", backend.ErrDeviceUnavailable, path, err)
	}

	caps := v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&caps)); err != nil {
		closeFd(fd)
		return nil, fmt.Errorf("%w: querycap %s: %v", backend.ErrDeviceUnavailable, path, err)
	}

	info := backend.DeviceInfo{
		Path: path,
		Name: cstr(caps.card[:]),
		ID:   syntheticID(cstr(caps.busInfo[:]), 0),
	}
	// Prefer the stable by-id symlink when one exists
	if stable := findStableID(filepath.Base(path), readSysfsInt(filepath.Join(sysfsVideoClass, filepath.Base(path), "index"))); stable != "" {
		info.ID = stable
	}

	return newDevice(fd, info, b.logger), nil
}

// syntheticID builds a fallback identity from bus_info and index when no
// by-id symlink exists.
func syntheticID(busInfo string, index int) string {
	if strings.HasPrefix(busInfo, "usb-") {
		return fmt.Sprintf("%s-video-index%d", busInfo, index)
	}
	return fmt.Sprintf("platform-%s-video-index%d", busInfo, index)
}

// findStableID looks for a stable ID symlink in /dev/v4l/by-id/.
func findStableID(deviceName string, indexValue int) string {
	byIDDir := "/dev/v4l/by-id"
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	expectedSuffix := fmt.Sprintf("-video-index%d", indexValue)

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}

		if filepath.Base(target) == deviceName && strings.HasSuffix(entry.Name(), expectedSuffix) {
			return entry.Name()
		}
	}

	return ""
}

// readSysfsInt reads an integer value from a sysfs file.
func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// FormatFourCC converts a 4-byte pixel format code to its readable form.
func FormatFourCC(format uint32) string {
	return string([]byte{
		byte(format),
		byte(format >> 8),
		byte(format >> 16),
		byte(format >> 24),
	})
}
