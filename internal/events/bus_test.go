package events

import (
	"testing"
	"time"

	"github.com/smazurov/camlink/internal/backend"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()

	received := make(chan CaptureErrorEvent, 1)
	unsub := bus.Subscribe(func(e CaptureErrorEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(CaptureErrorEvent{DeviceID: "sim-0", Stage: "negotiate", Error: "boom"})

	select {
	case e := <-received:
		if e.DeviceID != "sim-0" || e.Stage != "negotiate" {
			t.Errorf("received unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSubscriberOnlyReceivesItsType(t *testing.T) {
	bus := New()

	stateEvents := make(chan SessionStateChangedEvent, 1)
	unsub := bus.Subscribe(func(e SessionStateChangedEvent) {
		stateEvents <- e
	})
	defer unsub()

	bus.Publish(DeviceDiscoveryEvent{
		Device: backend.DeviceInfo{ID: "sim-0"},
		Action: "added",
	})

	select {
	case e := <-stateEvents:
		t.Errorf("state handler received discovery event: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()

	received := make(chan SessionStateChangedEvent, 4)
	unsub := bus.Subscribe(func(e SessionStateChangedEvent) {
		received <- e
	})

	bus.Publish(SessionStateChangedEvent{DeviceID: "sim-0", State: "running"})
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("first event not delivered")
	}

	unsub()
	bus.Publish(SessionStateChangedEvent{DeviceID: "sim-0", State: "idle"})
	select {
	case e := <-received:
		t.Errorf("received event after unsubscribe: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnknownHandlerIsNoop(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(s string) {})
	unsub() // must not panic
}
