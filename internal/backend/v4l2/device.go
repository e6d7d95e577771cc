//go:build linux && (amd64 || arm64)

package v4l2

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"unsafe"

	"github.com/smazurov/camlink/internal/backend"
	"github.com/smazurov/camlink/internal/frame"
)

const bufferCount = 4

// capDetail carries the fourcc and frame interval behind a capability entry,
// needed again when the entry is selected.
type capDetail struct {
	fourcc   uint32
	interval v4l2Fract
}

// Device is one open V4L2 capture device.
type Device struct {
	info   backend.DeviceInfo
	logger *slog.Logger

	mu        sync.Mutex
	fd        int
	details   map[backend.Capability]capDetail
	active    *backend.Capability
	callbacks map[int]backend.FrameFunc
	order     []int
	nextID    int
	streaming bool
	closed    bool
	stop      chan struct{}
	done      chan struct{}
	buffers   [][]byte
}

func newDevice(fd int, info backend.DeviceInfo, logger *slog.Logger) *Device {
	return &Device{
		info:      info,
		logger:    logger,
		fd:        fd,
		details:   make(map[backend.Capability]capDetail),
		callbacks: make(map[int]backend.FrameFunc),
	}
}

// Info returns the descriptor this device was opened from.
func (d *Device) Info() backend.DeviceInfo { return d.info }

// Capabilities enumerates every discrete format/resolution/interval
// combination the device reports, in driver order.
func (d *Device) Capabilities() ([]backend.Capability, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, backend.ErrDeviceUnavailable
	}

	var caps []backend.Capability

	for fi := uint32(0); ; fi++ {
		fmtdesc := v4l2Fmtdesc{index: fi, typ: v4l2BufTypeVideoCapture}
		if err := ioctl(d.fd, vidiocEnumFmt, unsafe.Pointer(&fmtdesc)); err != nil {
			if errors.Is(err, syscall.EINVAL) {
				break
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", fi, err)
		}

		for si := uint32(0); ; si++ {
			frmsize := v4l2Frmsizeenum{index: si, pixelFormat: fmtdesc.pixelformat}
			if err := ioctl(d.fd, vidiocEnumFramesizes, unsafe.Pointer(&frmsize)); err != nil {
				if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
					break
				}
				return nil, fmt.Errorf("failed to enumerate frame size %d: %w", si, err)
			}
			if frmsize.typ != v4l2FrmsizeTypeDiscrete {
				// Stepwise ranges are rare on capture hardware; skip rather
				// than invent entries the driver never reported
				break
			}

			intervals := d.frameIntervals(fmtdesc.pixelformat, frmsize.discrete.width, frmsize.discrete.height)
			for _, iv := range intervals {
				c := backend.Capability{
					Width:       int(frmsize.discrete.width),
					Height:      int(frmsize.discrete.height),
					FrameRate:   iv.fps(),
					PixelFormat: fourccToFormat(fmtdesc.pixelformat),
				}
				if _, dup := d.details[c]; dup {
					continue
				}
				d.details[c] = capDetail{fourcc: fmtdesc.pixelformat, interval: iv}
				caps = append(caps, c)
			}
		}
	}

	return caps, nil
}

// frameIntervals lists discrete frame intervals for a format and size,
// falling back to a single 30fps entry when enumeration is unsupported.
func (d *Device) frameIntervals(fourcc, width, height uint32) []v4l2Fract {
	var intervals []v4l2Fract

	for i := uint32(0); ; i++ {
		frmival := v4l2Frmivalenum{
			index:       i,
			pixelFormat: fourcc,
			width:       width,
			height:      height,
		}
		if err := ioctl(d.fd, vidiocEnumFrameintervals, unsafe.Pointer(&frmival)); err != nil {
			break
		}
		if frmival.typ != v4l2FrmivalTypeDiscrete {
			break
		}
		intervals = append(intervals, frmival.discrete)
	}

	if len(intervals) == 0 {
		intervals = []v4l2Fract{{numerator: 1, denominator: 30}}
	}
	return intervals
}

func (f v4l2Fract) fps() float64 {
	if f.numerator == 0 {
		return 0
	}
	return float64(f.denominator) / float64(f.numerator)
}

// fourccToFormat maps V4L2 fourcc codes onto camlink frame formats.
func fourccToFormat(fourcc uint32) frame.Format {
	switch fourcc {
	case pixFmtYUYV:
		return frame.FormatYUYV
	case pixFmtNV12:
		return frame.FormatNV12
	case pixFmtMJPEG:
		return frame.FormatMJPEG
	case pixFmtRGBA:
		return frame.FormatRGBA
	default:
		return frame.FormatRaw
	}
}

// SetCapability selects the active format, resolution and frame rate. The
// capability must be one previously returned by Capabilities.
func (d *Device) SetCapability(c backend.Capability) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrDeviceUnavailable
	}
	detail, ok := d.details[c]
	if !ok {
		return fmt.Errorf("v4l2: capability %dx%d@%g not reported by %s", c.Width, c.Height, c.FrameRate, d.info.Path)
	}

	format := v4l2Format{typ: v4l2BufTypeVideoCapture}
	format.pix.width = uint32(c.Width)
	format.pix.height = uint32(c.Height)
	format.pix.pixelformat = detail.fourcc
	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&format)); err != nil {
		return fmt.Errorf("%w: set format on %s: %v", backend.ErrDeviceUnavailable, d.info.Path, err)
	}

	parm := v4l2Streamparm{typ: v4l2BufTypeVideoCapture}
	parm.capture.timeperframe = detail.interval
	if err := ioctl(d.fd, vidiocSParm, unsafe.Pointer(&parm)); err != nil {
		// Fixed-rate devices reject S_PARM; the format took, keep going
		d.logger.Debug("set frame interval rejected", "path", d.info.Path, "error", err)
	}

	d.active = &c
	return nil
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

// Start maps buffers, queues them and begins the delivery loop.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrDeviceUnavailable
	}
	if d.streaming {
		return nil
	}
	if d.active == nil {
		return fmt.Errorf("v4l2: no capability selected for %s", d.info.Path)
	}

	req := v4l2Requestbuffers{
		count:  bufferCount,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("%w: request buffers on %s: %v", backend.ErrDeviceUnavailable, d.info.Path, err)
	}

	d.buffers = make([][]byte, req.count)
	for i := uint32(0); i < req.count; i++ {
		buf := v4l2Buffer{index: i, typ: v4l2BufTypeVideoCapture, memory: v4l2MemoryMmap}
		if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
			d.unmapLocked()
			return fmt.Errorf("%w: query buffer %d on %s: %v", backend.ErrDeviceUnavailable, i, d.info.Path, err)
		}

		mapped, err := syscall.Mmap(d.fd, int64(buf.mmapOffset()), int(buf.length),
			syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
		if err != nil {
			d.unmapLocked()
			return fmt.Errorf("%w: mmap buffer %d on %s: %v", backend.ErrDeviceUnavailable, i, d.info.Path, err)
		}
		d.buffers[i] = mapped

		if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
			d.unmapLocked()
			return fmt.Errorf("%w: queue buffer %d on %s: %v", backend.ErrDeviceUnavailable, i, d.info.Path, err)
		}
	}

	typ := uint32(v4l2BufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		d.unmapLocked()
		return fmt.Errorf("%w: stream on %s: %v", backend.ErrDeviceUnavailable, d.info.Path, err)
	}

	d.streaming = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(*d.active, d.stop, d.done)
	return nil
}

// run dequeues filled buffers and fans them out until stopped. The mapped
// buffer is only valid until it is requeued, so the data is copied before
// any callback sees it.
func (d *Device) run(active backend.Capability, stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		readable, err := waitReadable(d.fd, 100)
		if err != nil {
			d.logger.Warn("select failed on capture device", "path", d.info.Path, "error", err)
			return
		}
		if !readable {
			continue
		}

		buf := v4l2Buffer{typ: v4l2BufTypeVideoCapture, memory: v4l2MemoryMmap}
		if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
			if errors.Is(err, syscall.EAGAIN) {
				continue
			}
			d.logger.Warn("dequeue failed", "path", d.info.Path, "error", err)
			return
		}

		d.mu.Lock()
		var data []byte
		if int(buf.index) < len(d.buffers) && buf.bytesused > 0 {
			src := d.buffers[buf.index][:buf.bytesused]
			data = make([]byte, len(src))
			copy(data, src)
		}
		fns := make([]backend.FrameFunc, 0, len(d.order))
		for _, id := range d.order {
			if fn, ok := d.callbacks[id]; ok {
				fns = append(fns, fn)
			}
		}
		d.mu.Unlock()

		if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
			d.logger.Warn("requeue failed", "path", d.info.Path, "error", err)
			return
		}

		if data == nil {
			continue
		}
		for _, fn := range fns {
			fn(data, active.Width, active.Height, active.PixelFormat)
		}
	}
}

// Stop halts streaming and releases mapped buffers. No-op when not
// streaming.
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

	d.mu.Lock()
	defer d.mu.Unlock()
	typ := uint32(v4l2BufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		d.logger.Debug("stream off failed", "path", d.info.Path, "error", err)
	}
	d.unmapLocked()
	return nil
}

func (d *Device) unmapLocked() {
	for _, buf := range d.buffers {
		if buf != nil {
			if err := syscall.Munmap(buf); err != nil {
				d.logger.Debug("munmap failed", "path", d.info.Path, "error", err)
			}
		}
	}
	d.buffers = nil
}

// Close stops streaming and closes the device fd. Safe to call twice.
func (d *Device) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return closeFd(d.fd)
}
