// Package session drives the capture lifecycle for one device at a time.
//
// A Session is an explicit state machine (Idle, Starting, Running, Stopping)
// rather than a pair of booleans: every transition is checked, a second
// Start while one is in flight is rejected synchronously, and errors from
// the asynchronous part of startup surface on the result channel and the
// event bus instead of disappearing into a log line.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/camlink/internal/backend"
	"github.com/smazurov/camlink/internal/events"
	"github.com/smazurov/camlink/internal/frame"
	"github.com/smazurov/camlink/internal/metrics"
)

// Session errors.
var (
	// ErrAlreadyRunning is returned by Start when the session is not idle.
	ErrAlreadyRunning = errors.New("session: capture already running")

	// ErrNotRunning is returned by accessors that only make sense while
	// streaming.
	ErrNotRunning = errors.New("session: capture not running")

	// ErrNotBound is returned by Start when no device was bound.
	ErrNotBound = errors.New("session: no device bound")

	// ErrClosed is returned by every mutating call after Close.
	ErrClosed = errors.New("session: closed")
)

// State is the lifecycle phase of a session.
type State int32

// Session lifecycle states.
const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns the lowercase state name used in events and metrics.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Subscriber receives one frame event. The subscriber owns the event and
// must call Release exactly once; delivery is synchronous on the capture
// goroutine, so long-running work belongs on the subscriber's side of a
// channel.
type Subscriber func(*frame.Event)

// Session owns at most one open capture device and fans its frames out to
// subscribers and an optional render target.
type Session struct {
	backend backend.Backend
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	target    backend.DeviceInfo
	bound     bool
	closed    bool
	device    backend.Device
	unsub     func()
	active    backend.Capability
	startDone chan struct{}

	subMu   sync.Mutex
	subs    map[int]Subscriber
	order   []int
	nextSub int
	render  Subscriber

	seq       atomic.Uint64
	delivered atomic.Uint64
	skipped   atomic.Uint64
}

// New creates an idle session over the given backend. bus and m may be nil;
// when set, state transitions and capture errors are published.
func New(b backend.Backend, bus *events.Bus, m *metrics.Metrics, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		backend: b,
		bus:     bus,
		metrics: m,
		logger:  logger,
		subs:    make(map[int]Subscriber),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Bind selects the device the next Start will open. Only allowed while idle.
func (s *Session) Bind(info backend.DeviceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state != StateIdle {
		return fmt.Errorf("%w: cannot rebind in state %s", ErrAlreadyRunning, s.state)
	}
	s.target = info
	s.bound = true
	return nil
}

// Matches reports whether the bound device is the same physical device as
// info, by stable ID. An unbound session or an empty ID never matches.
func (s *Session) Matches(info backend.DeviceInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound && s.target.ID != "" && s.target.ID == info.ID
}

// Device returns the bound device descriptor.
func (s *Session) Device() (backend.DeviceInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.bound
}

// ActiveCapability returns the negotiated capability while streaming.
func (s *Session) ActiveCapability() (backend.Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return backend.Capability{}, ErrNotRunning
	}
	return s.active, nil
}

// Start begins capture. The synchronous error covers invalid transitions
// (ErrAlreadyRunning unless idle, ErrNotBound without a device); the device
// is then opened and configured on a separate goroutine and the outcome,
// nil or the startup error, arrives on the returned channel. A failed
// startup returns the session to idle.
func (s *Session) Start(ctx context.Context) (<-chan error, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if !s.bound {
		s.mu.Unlock()
		return nil, ErrNotBound
	}
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: state %s", ErrAlreadyRunning, state)
	}
	target := s.target
	done := make(chan struct{})
	s.startDone = done
	s.setStateLocked(StateStarting)
	s.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		defer close(done)
		stage, err := s.startup(ctx, target)
		if err != nil {
			s.logger.Error("Capture startup failed",
				"device_id", target.ID, "stage", stage, "error", err)
			if s.metrics != nil {
				s.metrics.StartupFailures.WithLabelValues(target.ID, stage).Inc()
			}
			if s.bus != nil {
				s.bus.Publish(events.CaptureErrorEvent{
					DeviceID:  target.ID,
					Stage:     stage,
					Error:     err.Error(),
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
			s.mu.Lock()
			s.setStateLocked(StateIdle)
			s.mu.Unlock()
			result <- fmt.Errorf("%s: %w", stage, err)
			return
		}
		s.mu.Lock()
		s.setStateLocked(StateRunning)
		s.mu.Unlock()
		result <- nil
	}()
	return result, nil
}

// startup opens, negotiates and starts the target device. On error the
// returned stage names the step that failed and no resources remain held.
func (s *Session) startup(ctx context.Context, target backend.DeviceInfo) (string, error) {
	if err := ctx.Err(); err != nil {
		return "open", err
	}
	dev, err := s.backend.Open(target.Path)
	if err != nil {
		return "open", err
	}

	fail := func(stage string, err error) (string, error) {
		dev.Close()
		return stage, err
	}

	caps, err := dev.Capabilities()
	if err != nil {
		return fail("negotiate", err)
	}
	pick, err := Negotiate(caps)
	if err != nil {
		return fail("negotiate", err)
	}
	if err := ctx.Err(); err != nil {
		return fail("configure", err)
	}
	if err := dev.SetCapability(pick); err != nil {
		return fail("configure", err)
	}
	unsub, err := dev.Subscribe(s.onFrame)
	if err != nil {
		return fail("subscribe", err)
	}
	if err := ctx.Err(); err != nil {
		unsub()
		return fail("stream", err)
	}
	if err := dev.Start(); err != nil {
		unsub()
		return fail("stream", err)
	}

	s.logger.Info("Capture started",
		"device_id", target.ID,
		"width", pick.Width, "height", pick.Height,
		"fps", pick.FrameRate, "format", string(pick.PixelFormat))

	s.mu.Lock()
	s.device = dev
	s.unsub = unsub
	s.active = pick
	s.mu.Unlock()
	return "", nil
}

// Negotiate picks the capability with the greatest width; ties keep the
// first entry in reported order, which preserves the backend's format
// preference.
func Negotiate(caps []backend.Capability) (backend.Capability, error) {
	if len(caps) == 0 {
		return backend.Capability{}, errors.New("device reports no capabilities")
	}
	best := caps[0]
	for _, c := range caps[1:] {
		if c.Width > best.Width {
			best = c
		}
	}
	return best, nil
}

// Stop halts capture and releases the device. Stopping an idle session is a
// no-op. If a startup is in flight, Stop waits for it to settle first so the
// device is never torn down underneath its own configuration.
func (s *Session) Stop() error {
	for {
		s.mu.Lock()
		switch s.state {
		case StateIdle, StateStopping:
			s.mu.Unlock()
			return nil
		case StateStarting:
			done := s.startDone
			s.mu.Unlock()
			<-done
		case StateRunning:
			s.setStateLocked(StateStopping)
			dev, unsub := s.device, s.unsub
			s.device = nil
			s.unsub = nil
			s.mu.Unlock()

			if unsub != nil {
				unsub()
			}
			var err error
			if dev != nil {
				err = dev.Stop()
				if closeErr := dev.Close(); err == nil {
					err = closeErr
				}
			}
			s.publishStats()

			s.mu.Lock()
			s.setStateLocked(StateIdle)
			s.mu.Unlock()
			return err
		}
	}
}

// ChangeDevice switches capture to another device: stop the current one,
// rebind, and start the new one, waiting for the asynchronous startup to
// settle. A session that was idle simply binds and starts.
func (s *Session) ChangeDevice(ctx context.Context, info backend.DeviceInfo) error {
	if err := s.Stop(); err != nil {
		return fmt.Errorf("failed to stop previous device: %w", err)
	}
	if err := s.Bind(info); err != nil {
		return err
	}
	result, err := s.Start(ctx)
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops capture and retires the session. Idempotent; never returns an
// error even when the underlying stop does, because a closed session has
// nothing left for the caller to retry.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.Stop(); err != nil {
		s.logger.Warn("Error while stopping during close", "error", err)
	}
}

// Subscribe registers a synchronous frame consumer and returns its
// unsubscribe function. Consumers are called in registration order.
func (s *Session) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.order = append(s.order, id)
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[id]; !ok {
			return
		}
		delete(s.subs, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

// SetRenderTarget installs the consumer that receives each frame before the
// subscribers. A nil target clears it.
func (s *Session) SetRenderTarget(fn Subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.render = fn
}

// Stats returns the delivered and skipped frame counters.
func (s *Session) Stats() (delivered, skipped uint64) {
	return s.delivered.Load(), s.skipped.Load()
}

// onFrame is the backend frame callback. It copies the raw data into a
// refcounted buffer and hands one borrowed reference to each consumer.
// With no consumers registered the frame is counted and dropped without
// allocating anything.
func (s *Session) onFrame(data []byte, width, height int, format frame.Format) {
	s.subMu.Lock()
	consumers := make([]Subscriber, 0, len(s.order)+1)
	if s.render != nil {
		consumers = append(consumers, s.render)
	}
	for _, id := range s.order {
		consumers = append(consumers, s.subs[id])
	}
	s.subMu.Unlock()

	if len(consumers) == 0 {
		s.skipped.Add(1)
		if s.metrics != nil {
			s.metrics.FramesSkipped.WithLabelValues(s.deviceID()).Inc()
		}
		return
	}

	owned := make([]byte, len(data))
	copy(owned, data)
	buf := frame.NewBuffer(owned, width, height, format, s.seq.Add(1), nil)

	// The creation reference pins the buffer through fanout. Releasing it
	// in a defer keeps the count balanced even when a consumer panics, so
	// storage is still freed once the last consumer releases its event.
	defer func() {
		if err := buf.Release(); err != nil {
			s.logger.Warn("Frame buffer over-released", "error", err)
		}
	}()

	for _, fn := range consumers {
		ev, err := frame.NewEvent(buf)
		if err != nil {
			// A consumer released more than once and freed the buffer early;
			// remaining consumers miss this frame.
			s.logger.Warn("Frame freed before fanout completed", "error", err)
			break
		}
		s.deliver(fn, ev)
	}

	s.delivered.Add(1)
	if s.metrics != nil {
		s.metrics.FramesDelivered.WithLabelValues(s.deviceID()).Inc()
	}
}

// deliver hands one event to one consumer. A panicking consumer must not
// kill the backend's delivery goroutine or strand its reference, so the
// panic is contained here and the event's reference returned on its
// behalf.
func (s *Session) deliver(fn Subscriber, ev *frame.Event) {
	defer func() {
		if r := recover(); r != nil {
			_ = ev.Release()
			s.logger.Error("Frame subscriber panicked", "panic", r)
		}
	}()
	fn(ev)
}

func (s *Session) deviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target.ID
}

// setStateLocked transitions the state and publishes the change. Caller
// holds s.mu.
func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.state = next
	s.logger.Debug("Session state changed", "device_id", s.target.ID, "state", next.String())
	if s.metrics != nil {
		s.metrics.SetSessionState(s.target.ID, next.String())
	}
	if s.bus != nil {
		s.bus.Publish(events.SessionStateChangedEvent{
			DeviceID:  s.target.ID,
			State:     next.String(),
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}

// publishStats emits the final frame counters for the capture run.
func (s *Session) publishStats() {
	if s.bus == nil {
		return
	}
	s.mu.Lock()
	id := s.target.ID
	fps := s.active.FrameRate
	s.mu.Unlock()
	s.bus.Publish(events.FrameStatsEvent{
		DeviceID:  id,
		Delivered: s.delivered.Load(),
		Skipped:   s.skipped.Load(),
		FPS:       fps,
	})
}
