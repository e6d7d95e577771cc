// Package frame implements ownership transfer for decoded video frames.
//
// A frame arrives from the capture backend once and may be consumed by
// several readers (a render target plus any number of event subscribers).
// Buffer reference-counts those readers so the underlying storage is
// returned to the backend exactly once, after the last reader finishes.
// Reads after release are rejected, never undefined.
package frame

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrReleased is returned when a frame buffer is read or released after its
// last reference was already dropped.
var ErrReleased = errors.New("frame: buffer already released")

// Format identifies the pixel layout of a raw frame.
type Format string

// Pixel formats delivered by capture backends.
const (
	FormatRGBA  Format = "rgba"
	FormatYUYV  Format = "yuyv"
	FormatNV12  Format = "nv12"
	FormatMJPEG Format = "mjpeg"
	FormatRaw   Format = "raw"
)

// Buffer wraps one decoded frame with a reference count. It is created with
// a single reference; Retain adds one and Release drops one. When the count
// reaches zero the release func runs and the data becomes unreadable.
type Buffer struct {
	data      []byte
	width     int
	height    int
	format    Format
	timestamp time.Time
	sequence  uint64

	refs   atomic.Int32
	onFree func()
	freed  atomic.Bool
}

// NewBuffer wraps data in a Buffer holding one reference. onFree runs exactly
// once, when the last reference is released; it may be nil.
func NewBuffer(data []byte, width, height int, format Format, seq uint64, onFree func()) *Buffer {
	b := &Buffer{
		data:      data,
		width:     width,
		height:    height,
		format:    format,
		timestamp: time.Now(),
		sequence:  seq,
		onFree:    onFree,
	}
	b.refs.Store(1)
	return b
}

// Retain adds a reference. It fails with ErrReleased if the buffer is
// already freed, so a stale holder cannot resurrect it.
func (b *Buffer) Retain() error {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return ErrReleased
		}
		if b.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops one reference. The final release frees the underlying
// storage; releasing an already-freed buffer returns ErrReleased instead of
// corrupting the count.
func (b *Buffer) Release() error {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return ErrReleased
		}
		if !b.refs.CompareAndSwap(n, n-1) {
			continue
		}
		if n == 1 {
			b.free()
		}
		return nil
	}
}

func (b *Buffer) free() {
	if !b.freed.CompareAndSwap(false, true) {
		return
	}
	b.data = nil
	if b.onFree != nil {
		b.onFree()
	}
}

// Bytes returns the raw frame data for reading. Callers must not mutate or
// retain the slice past their reference.
func (b *Buffer) Bytes() ([]byte, error) {
	if b.freed.Load() {
		return nil, ErrReleased
	}
	return b.data, nil
}

// Width returns the frame width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height returns the frame height in pixels.
func (b *Buffer) Height() int { return b.height }

// Format returns the pixel format.
func (b *Buffer) Format() Format { return b.format }

// Timestamp returns the arrival time of the frame.
func (b *Buffer) Timestamp() time.Time { return b.timestamp }

// Sequence returns the monotonic frame counter assigned by the session.
func (b *Buffer) Sequence() uint64 { return b.sequence }

// Event is the ownership-transferring wrapper delivered to subscribers.
// Each Event borrows one reference on the shared Buffer; the receiver must
// call Release exactly once when done. All accessors are read-only.
type Event struct {
	buf      *Buffer
	released atomic.Bool
}

// NewEvent borrows one reference from buf for delivery to a subscriber.
// Fails with ErrReleased if buf is already freed.
func NewEvent(buf *Buffer) (*Event, error) {
	if err := buf.Retain(); err != nil {
		return nil, err
	}
	return &Event{buf: buf}, nil
}

// Bytes returns the frame data, or ErrReleased after Release.
func (e *Event) Bytes() ([]byte, error) {
	if e.released.Load() {
		return nil, ErrReleased
	}
	return e.buf.Bytes()
}

// Width returns the frame width in pixels.
func (e *Event) Width() int { return e.buf.Width() }

// Height returns the frame height in pixels.
func (e *Event) Height() int { return e.buf.Height() }

// Format returns the pixel format.
func (e *Event) Format() Format { return e.buf.Format() }

// Timestamp returns the arrival time of the frame.
func (e *Event) Timestamp() time.Time { return e.buf.Timestamp() }

// Sequence returns the monotonic frame counter.
func (e *Event) Sequence() uint64 { return e.buf.Sequence() }

// Release returns this event's reference to the shared buffer. Safe to call
// once per event; a second call returns ErrReleased and does nothing.
func (e *Event) Release() error {
	if !e.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	return e.buf.Release()
}
