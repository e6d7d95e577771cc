//go:build linux && (amd64 || arm64)

package v4l2

import (
	"path/filepath"
	"testing"

	"github.com/smazurov/camlink/internal/frame"
)

func TestFormatFourCC(t *testing.T) {
	tests := []struct {
		fourcc   uint32
		expected string
	}{
		{pixFmtYUYV, "YUYV"},
		{pixFmtNV12, "NV12"},
		{pixFmtMJPEG, "MJPG"},
	}

	for _, tt := range tests {
		if got := FormatFourCC(tt.fourcc); got != tt.expected {
			t.Errorf("FormatFourCC(0x%08x) = %q, want %q", tt.fourcc, got, tt.expected)
		}
	}
}

func TestFourccToFormat(t *testing.T) {
	tests := []struct {
		fourcc   uint32
		expected frame.Format
	}{
		{pixFmtYUYV, frame.FormatYUYV},
		{pixFmtNV12, frame.FormatNV12},
		{pixFmtMJPEG, frame.FormatMJPEG},
		{0x32315559, frame.FormatRaw}, // YU12, unmapped
	}

	for _, tt := range tests {
		if got := fourccToFormat(tt.fourcc); got != tt.expected {
			t.Errorf("fourccToFormat(0x%08x) = %q, want %q", tt.fourcc, got, tt.expected)
		}
	}
}

func TestSyntheticID(t *testing.T) {
	tests := []struct {
		busInfo  string
		index    int
		expected string
	}{
		{"usb-0000:00:14.0-1", 0, "usb-0000:00:14.0-1-video-index0"},
		{"PCI:0000:03:00.0", 1, "platform-PCI:0000:03:00.0-video-index1"},
	}

	for _, tt := range tests {
		if got := syntheticID(tt.busInfo, tt.index); got != tt.expected {
			t.Errorf("syntheticID(%q, %d) = %q, want %q", tt.busInfo, tt.index, got, tt.expected)
		}
	}
}

func TestFractFPS(t *testing.T) {
	if got := (v4l2Fract{numerator: 1, denominator: 30}).fps(); got != 30 {
		t.Errorf("fps() = %g, want 30", got)
	}
	if got := (v4l2Fract{numerator: 0, denominator: 30}).fps(); got != 0 {
		t.Errorf("fps() with zero numerator = %g, want 0", got)
	}
}

func TestCstr(t *testing.T) {
	if got := cstr([]byte{'c', 'a', 'm', 0, 'x'}); got != "cam" {
		t.Errorf("cstr = %q, want %q", got, "cam")
	}
	if got := cstr([]byte{'c', 'a', 'm'}); got != "cam" {
		t.Errorf("cstr without NUL = %q, want %q", got, "cam")
	}
}

func TestDevicesMissingSysfsDirIsError(t *testing.T) {
	b := New(nil)
	b.sysfsDir = filepath.Join(t.TempDir(), "video4linux")

	if _, err := b.Devices(); err == nil {
		t.Fatal("enumeration without the sysfs class directory should fail, not report zero devices")
	}
}

func TestDevicesEmptySysfsDir(t *testing.T) {
	b := New(nil)
	b.sysfsDir = t.TempDir()

	devices, err := b.Devices()
	if err != nil {
		t.Fatalf("Devices() with empty class directory: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("devices = %v, want none", devices)
	}
}
