// Package sim provides an in-process capture backend that synthesizes
// frames on a ticker. It exists for development on machines without capture
// hardware and for exercising session lifecycle in tests; it implements the
// full backend contract including capability negotiation.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/camlink/internal/backend"
	"github.com/smazurov/camlink/internal/frame"
)

// DefaultCapabilities mirrors the entries a typical UVC webcam reports.
var DefaultCapabilities = []backend.Capability{
	{Width: 640, Height: 480, FrameRate: 30, PixelFormat: frame.FormatRGBA},
	{Width: 1280, Height: 720, FrameRate: 30, PixelFormat: frame.FormatRGBA},
	{Width: 1920, Height: 1080, FrameRate: 30, PixelFormat: frame.FormatRGBA},
}

// DeviceSpec configures one simulated device.
type DeviceSpec struct {
	Info         backend.DeviceInfo
	Capabilities []backend.Capability
}

// Backend is a simulated capture backend with a fixed device list.
type Backend struct {
	specs []DeviceSpec
}

// New creates a simulated backend exposing the given devices. With no specs
// it exposes a single default camera.
func New(specs ...DeviceSpec) *Backend {
	if len(specs) == 0 {
		specs = []DeviceSpec{{
			Info: backend.DeviceInfo{
				Path: "/dev/sim0",
				Name: "Simulated Camera",
				ID:   "sim-0000-video-index0",
			},
			Capabilities: DefaultCapabilities,
		}}
	}
	return &Backend{specs: specs}
}

// Name identifies the backend implementation.
func (b *Backend) Name() string { return "sim" }

// Devices enumerates the configured simulated devices.
func (b *Backend) Devices() ([]backend.DeviceInfo, error) {
	infos := make([]backend.DeviceInfo, len(b.specs))
	for i, spec := range b.specs {
		infos[i] = spec.Info
	}
	return infos, nil
}

// Open opens a simulated device by path.
func (b *Backend) Open(path string) (backend.Device, error) {
	for _, spec := range b.specs {
		if spec.Info.Path == path {
			return newDevice(spec), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", backend.ErrDeviceNotFound, path)
}

// Device is one open simulated device.
type Device struct {
	spec DeviceSpec

	mu        sync.Mutex
	active    backend.Capability
	callbacks map[int]backend.FrameFunc
	order     []int
	nextID    int
	streaming bool
	closed    bool
	stop      chan struct{}
	done      chan struct{}
	sequence  uint64
}

func newDevice(spec DeviceSpec) *Device {
	caps := spec.Capabilities
	if len(caps) == 0 {
		caps = DefaultCapabilities
	}
	return &Device{
		spec:      DeviceSpec{Info: spec.Info, Capabilities: caps},
		active:    caps[0],
		callbacks: make(map[int]backend.FrameFunc),
	}
}

// Info returns the descriptor this device was opened from.
func (d *Device) Info() backend.DeviceInfo { return d.spec.Info }

// Capabilities lists the configured capability entries.
func (d *Device) Capabilities() ([]backend.Capability, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, backend.ErrDeviceUnavailable
	}
	caps := make([]backend.Capability, len(d.spec.Capabilities))
	copy(caps, d.spec.Capabilities)
	return caps, nil
}

// SetCapability selects the active capability. Must be one of the entries
// reported by Capabilities.
func (d *Device) SetCapability(c backend.Capability) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrDeviceUnavailable
	}
	for _, have := range d.spec.Capabilities {
		if have == c {
			d.active = c
			return nil
		}
	}
	return fmt.Errorf("sim: unsupported capability %dx%d@%g", c.Width, c.Height, c.FrameRate)
}

// Subscribe registers a frame callback.
func (d *Device) Subscribe(fn backend.FrameFunc) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, backend.ErrDeviceUnavailable
	}
	id := d.nextID
	d.nextID++
	d.callbacks[id] = fn
	d.order = append(d.order, id)

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.callbacks, id)
	}, nil
}

// Start begins generating frames at the active capability's frame rate.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrDeviceUnavailable
	}
	if d.streaming {
		return nil
	}
	d.streaming = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	interval := time.Second / 30
	if d.active.FrameRate > 0 {
		interval = time.Duration(float64(time.Second) / d.active.FrameRate)
	}
	go d.run(d.active, interval, d.stop, d.done)
	return nil
}

func (d *Device) run(cap backend.Capability, interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.deliver(cap)
		}
	}
}

// deliver synthesizes one gradient frame and pushes it to all callbacks in
// registration order.
func (d *Device) deliver(cap backend.Capability) {
	d.mu.Lock()
	d.sequence++
	seq := d.sequence
	fns := make([]backend.FrameFunc, 0, len(d.order))
	for _, id := range d.order {
		if fn, ok := d.callbacks[id]; ok {
			fns = append(fns, fn)
		}
	}
	d.mu.Unlock()

	if len(fns) == 0 {
		return
	}

	data := renderGradient(cap.Width, cap.Height, seq)
	for _, fn := range fns {
		fn(data, cap.Width, cap.Height, cap.PixelFormat)
	}
}

// renderGradient fills an RGBA frame with a pattern that shifts per frame so
// consumers can tell frames apart.
func renderGradient(width, height int, seq uint64) []byte {
	data := make([]byte, width*height*4)
	shift := byte(seq)
	for y := 0; y < height; y++ {
		row := y * width * 4
		g := byte(y) + shift
		for x := 0; x < width; x++ {
			px := row + x*4
			data[px] = byte(x) + shift
			data[px+1] = g
			data[px+2] = shift
			data[px+3] = 0xFF
		}
	}
	return data
}

// Stop halts frame generation. No-op when not streaming.
func (d *Device) Stop() error {
	d.mu.Lock()
	if !d.streaming {
		d.mu.Unlock()
		return nil
	}
	d.streaming = false
	stop, done := d.stop, d.done
	d.mu.Unlock()

	close(stop)
	<-done
	return nil
}

// Close stops streaming and marks the handle unusable. Safe to call twice.
func (d *Device) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
