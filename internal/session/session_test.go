package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camlink/internal/backend"
	"github.com/smazurov/camlink/internal/backend/sim"
	"github.com/smazurov/camlink/internal/events"
	"github.com/smazurov/camlink/internal/frame"
)

// fastSpec keeps frames tiny and frequent so lifecycle tests finish quickly.
func fastSpec(path, id string) sim.DeviceSpec {
	return sim.DeviceSpec{
		Info: backend.DeviceInfo{Path: path, Name: "Fast Cam", ID: id},
		Capabilities: []backend.Capability{
			{Width: 8, Height: 8, FrameRate: 200, PixelFormat: frame.FormatRGBA},
		},
	}
}

func waitResult(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("startup did not settle")
		return nil
	}
}

func TestNegotiate(t *testing.T) {
	caps := []backend.Capability{
		{Width: 320, Height: 240, FrameRate: 30},
		{Width: 640, Height: 480, FrameRate: 30},
		{Width: 640, Height: 360, FrameRate: 60},
		{Width: 1280, Height: 720, FrameRate: 30},
	}
	pick, err := Negotiate(caps)
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if pick.Width != 1280 {
		t.Errorf("Negotiate() picked width %d, want 1280", pick.Width)
	}
}

func TestNegotiateTiePrefersFirstSeen(t *testing.T) {
	caps := []backend.Capability{
		{Width: 1920, Height: 1080, FrameRate: 30, PixelFormat: frame.FormatYUYV},
		{Width: 1920, Height: 1080, FrameRate: 60, PixelFormat: frame.FormatMJPEG},
	}
	pick, err := Negotiate(caps)
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if pick.PixelFormat != frame.FormatYUYV {
		t.Errorf("Negotiate() picked %+v, want first-seen entry", pick)
	}
}

func TestNegotiateEmpty(t *testing.T) {
	if _, err := Negotiate(nil); err == nil {
		t.Error("Negotiate(nil) expected error")
	}
}

func TestStartStopCycle(t *testing.T) {
	s := New(sim.New(fastSpec("/dev/sim0", "sim-0")), nil, nil, nil)
	defer s.Close()

	if err := s.Bind(backend.DeviceInfo{Path: "/dev/sim0", ID: "sim-0"}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	for cycle := 0; cycle < 2; cycle++ {
		result, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("cycle %d: Start() error = %v", cycle, err)
		}
		if err := waitResult(t, result); err != nil {
			t.Fatalf("cycle %d: startup error = %v", cycle, err)
		}
		if got := s.State(); got != StateRunning {
			t.Fatalf("cycle %d: state = %s, want running", cycle, got)
		}
		if err := s.Stop(); err != nil {
			t.Fatalf("cycle %d: Stop() error = %v", cycle, err)
		}
		if got := s.State(); got != StateIdle {
			t.Fatalf("cycle %d: state after stop = %s, want idle", cycle, got)
		}
	}
}

func TestDoubleStartRejected(t *testing.T) {
	s := New(sim.New(fastSpec("/dev/sim0", "sim-0")), nil, nil, nil)
	defer s.Close()

	if err := s.Bind(backend.DeviceInfo{Path: "/dev/sim0", ID: "sim-0"}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	result, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if err := waitResult(t, result); err != nil {
		t.Fatalf("startup error = %v", err)
	}
	if _, err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start() while running error = %v, want ErrAlreadyRunning", err)
	}
}

func TestStartUnbound(t *testing.T) {
	s := New(sim.New(), nil, nil, nil)
	defer s.Close()

	if _, err := s.Start(context.Background()); !errors.Is(err, ErrNotBound) {
		t.Errorf("Start() error = %v, want ErrNotBound", err)
	}
}

func TestAsyncStartupErrorSurfaces(t *testing.T) {
	bus := events.New()
	captureErrs := make(chan events.CaptureErrorEvent, 1)
	unsub := bus.Subscribe(func(e events.CaptureErrorEvent) {
		captureErrs <- e
	})
	defer unsub()

	s := New(sim.New(fastSpec("/dev/sim0", "sim-0")), bus, nil, nil)
	defer s.Close()

	if err := s.Bind(backend.DeviceInfo{Path: "/dev/missing", ID: "ghost"}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	result, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	startupErr := waitResult(t, result)
	if !errors.Is(startupErr, backend.ErrDeviceNotFound) {
		t.Errorf("startup error = %v, want ErrDeviceNotFound", startupErr)
	}
	if got := s.State(); got != StateIdle {
		t.Errorf("state after failed startup = %s, want idle", got)
	}

	select {
	case e := <-captureErrs:
		if e.DeviceID != "ghost" || e.Stage != "open" {
			t.Errorf("capture error event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("capture error event not published")
	}
}

func TestStopIdleIsNoop(t *testing.T) {
	s := New(sim.New(), nil, nil, nil)
	defer s.Close()

	if err := s.Stop(); err != nil {
		t.Errorf("Stop() on idle session error = %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := New(sim.New(fastSpec("/dev/sim0", "sim-0")), nil, nil, nil)

	if err := s.Bind(backend.DeviceInfo{Path: "/dev/sim0", ID: "sim-0"}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	result, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := waitResult(t, result); err != nil {
		t.Fatalf("startup error = %v", err)
	}

	s.Close()
	s.Close() // second close must not panic or block

	if _, err := s.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after close error = %v, want ErrClosed", err)
	}
}

func TestFrameDeliveryOrder(t *testing.T) {
	s := New(sim.New(fastSpec("/dev/sim0", "sim-0")), nil, nil, nil)
	defer s.Close()

	var mu sync.Mutex
	var calls []int
	makeSub := func(label int) Subscriber {
		return func(ev *frame.Event) {
			data, err := ev.Bytes()
			if err != nil {
				t.Errorf("subscriber %d: Bytes() error = %v", label, err)
			}
			if len(data) != 8*8*4 {
				t.Errorf("subscriber %d: frame size %d, want %d", label, len(data), 8*8*4)
			}
			mu.Lock()
			calls = append(calls, label)
			mu.Unlock()
			if err := ev.Release(); err != nil {
				t.Errorf("subscriber %d: Release() error = %v", label, err)
			}
		}
	}
	s.Subscribe(makeSub(1))
	s.Subscribe(makeSub(2))

	if err := s.Bind(backend.DeviceInfo{Path: "/dev/sim0", ID: "sim-0"}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	result, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := waitResult(t, result); err != nil {
		t.Fatalf("startup error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(calls)
		mu.Unlock()
		if n >= 6 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d deliveries observed", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i+1 < len(calls); i += 2 {
		if calls[i] != 1 || calls[i+1] != 2 {
			t.Fatalf("delivery order broken at %d: %v", i, calls)
		}
	}

	delivered, skipped := s.Stats()
	if delivered == 0 {
		t.Error("delivered counter is zero")
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0 with consumers attached", skipped)
	}
}

func TestFramesSkippedWithoutConsumers(t *testing.T) {
	s := New(sim.New(fastSpec("/dev/sim0", "sim-0")), nil, nil, nil)
	defer s.Close()

	if err := s.Bind(backend.DeviceInfo{Path: "/dev/sim0", ID: "sim-0"}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	result, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := waitResult(t, result); err != nil {
		t.Fatalf("startup error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		_, skipped := s.Stats()
		if skipped >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no frames were skipped")
		case <-time.After(5 * time.Millisecond):
		}
	}

	delivered, _ := s.Stats()
	if delivered != 0 {
		t.Errorf("delivered = %d, want 0 without consumers", delivered)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := New(sim.New(fastSpec("/dev/sim0", "sim-0")), nil, nil, nil)
	defer s.Close()

	var count sync.WaitGroup
	count.Add(1)
	var once sync.Once
	unsub := s.Subscribe(func(ev *frame.Event) {
		once.Do(count.Done)
		ev.Release()
	})

	if err := s.Bind(backend.DeviceInfo{Path: "/dev/sim0", ID: "sim-0"}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	result, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := waitResult(t, result); err != nil {
		t.Fatalf("startup error = %v", err)
	}

	count.Wait()
	unsub()
	unsub() // second call is a no-op

	// With the only subscriber gone, new frames are skipped again.
	deadline := time.After(2 * time.Second)
	for {
		_, skipped := s.Stats()
		if skipped > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("frames still delivered after unsubscribe")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMatches(t *testing.T) {
	s := New(sim.New(), nil, nil, nil)
	defer s.Close()

	if s.Matches(backend.DeviceInfo{ID: "sim-0"}) {
		t.Error("unbound session must not match")
	}
	if err := s.Bind(backend.DeviceInfo{Path: "/dev/sim0", ID: "sim-0"}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if !s.Matches(backend.DeviceInfo{ID: "sim-0", Path: "/dev/video9"}) {
		t.Error("same ID with different path must match")
	}
	if s.Matches(backend.DeviceInfo{ID: "other"}) {
		t.Error("different ID must not match")
	}
	if s.Matches(backend.DeviceInfo{}) {
		t.Error("empty ID must not match")
	}
}

func TestChangeDevice(t *testing.T) {
	bus := events.New()
	states := make(chan events.SessionStateChangedEvent, 16)
	unsub := bus.Subscribe(func(e events.SessionStateChangedEvent) {
		states <- e
	})
	defer unsub()

	b := sim.New(fastSpec("/dev/sim0", "sim-0"), fastSpec("/dev/sim1", "sim-1"))
	s := New(b, bus, nil, nil)
	defer s.Close()

	if err := s.Bind(backend.DeviceInfo{Path: "/dev/sim0", ID: "sim-0"}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	result, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := waitResult(t, result); err != nil {
		t.Fatalf("startup error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.ChangeDevice(ctx, backend.DeviceInfo{Path: "/dev/sim1", ID: "sim-1"}); err != nil {
		t.Fatalf("ChangeDevice() error = %v", err)
	}

	if got := s.State(); got != StateRunning {
		t.Errorf("state after switch = %s, want running", got)
	}
	if !s.Matches(backend.DeviceInfo{ID: "sim-1"}) {
		t.Error("session must match the new device")
	}

	// The transition stream must pass through stopping and starting for the
	// switch.
	seen := map[string]bool{}
	timeout := time.After(time.Second)
	for !seen["sim-0/stopping"] || !seen["sim-1/running"] {
		select {
		case e := <-states:
			seen[e.DeviceID+"/"+e.State] = true
		case <-timeout:
			t.Fatalf("state events incomplete: %v", seen)
		}
	}
}

func TestChangeDeviceFromIdle(t *testing.T) {
	s := New(sim.New(fastSpec("/dev/sim0", "sim-0")), nil, nil, nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.ChangeDevice(ctx, backend.DeviceInfo{Path: "/dev/sim0", ID: "sim-0"}); err != nil {
		t.Fatalf("ChangeDevice() from idle error = %v", err)
	}
	if got := s.State(); got != StateRunning {
		t.Errorf("state = %s, want running", got)
	}
}

func TestSubscriberPanicContained(t *testing.T) {
	s := New(sim.New(), nil, nil, nil)
	defer s.Close()

	var after int
	s.Subscribe(func(_ *frame.Event) {
		// Never releases; the session must return the reference for it
		panic("consumer failure")
	})
	s.Subscribe(func(ev *frame.Event) {
		if _, err := ev.Bytes(); err != nil {
			t.Errorf("frame unreadable after earlier panic: %v", err)
		}
		after++
		ev.Release()
	})

	s.onFrame(make([]byte, 4), 1, 1, frame.FormatRGBA)
	s.onFrame(make([]byte, 4), 1, 1, frame.FormatRGBA)

	if after != 2 {
		t.Errorf("later subscriber deliveries = %d, want 2", after)
	}
	if delivered, _ := s.Stats(); delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
}

func TestRenderTargetDeliveredFirst(t *testing.T) {
	s := New(sim.New(), nil, nil, nil)
	defer s.Close()

	var order []string
	var held *frame.Event

	s.Subscribe(func(ev *frame.Event) {
		order = append(order, "subscriber")
		ev.Release()
	})
	s.SetRenderTarget(func(ev *frame.Event) {
		order = append(order, "render")
		held = ev
	})

	s.onFrame(make([]byte, 4), 1, 1, frame.FormatRGBA)

	if len(order) != 2 || order[0] != "render" || order[1] != "subscriber" {
		t.Fatalf("delivery order = %v, want [render subscriber]", order)
	}

	// The subscriber and the session released their references; the render
	// target's outstanding event keeps the frame alive until it releases
	if _, err := held.Bytes(); err != nil {
		t.Fatalf("held reference should keep frame readable: %v", err)
	}
	if err := held.Release(); err != nil {
		t.Fatalf("releasing held reference: %v", err)
	}
	if _, err := held.Bytes(); !errors.Is(err, frame.ErrReleased) {
		t.Errorf("read after final release = %v, want ErrReleased", err)
	}

	s.SetRenderTarget(nil)
	order = nil
	s.onFrame(make([]byte, 4), 1, 1, frame.FormatRGBA)
	if len(order) != 1 || order[0] != "subscriber" {
		t.Errorf("after clearing render target, order = %v, want [subscriber]", order)
	}
}
