package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetSessionStateOneHot(t *testing.T) {
	m := New()

	m.SetSessionState("cam-1", "running")

	for state, want := range map[string]float64{
		"idle": 0, "starting": 0, "running": 1, "stopping": 0,
	} {
		got := testutil.ToFloat64(m.SessionState.WithLabelValues("cam-1", state))
		if got != want {
			t.Errorf("state %s = %v, want %v", state, got, want)
		}
	}

	// Moving to another state clears the previous one
	m.SetSessionState("cam-1", "idle")
	if got := testutil.ToFloat64(m.SessionState.WithLabelValues("cam-1", "running")); got != 0 {
		t.Errorf("running after transition = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.SessionState.WithLabelValues("cam-1", "idle")); got != 1 {
		t.Errorf("idle after transition = %v, want 1", got)
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.FramesDelivered.WithLabelValues("cam-1").Inc()
	m.FramesDelivered.WithLabelValues("cam-1").Inc()
	m.StartupFailures.WithLabelValues("cam-1", "open").Inc()

	if got := testutil.ToFloat64(m.FramesDelivered.WithLabelValues("cam-1")); got != 2 {
		t.Errorf("frames delivered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StartupFailures.WithLabelValues("cam-1", "open")); got != 1 {
		t.Errorf("startup failures = %v, want 1", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.DevicesKnown.Set(3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "camlink_devices_known 3") {
		t.Errorf("exposition missing devices gauge:\n%s", rec.Body.String())
	}
}
