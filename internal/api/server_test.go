package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smazurov/camlink/internal/backend"
	"github.com/smazurov/camlink/internal/backend/sim"
	"github.com/smazurov/camlink/internal/catalog"
	"github.com/smazurov/camlink/internal/frame"
	"github.com/smazurov/camlink/internal/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()

	b := sim.New(sim.DeviceSpec{
		Info: backend.DeviceInfo{Path: "/dev/sim0", Name: "Test Cam", ID: "sim-0"},
		Capabilities: []backend.Capability{
			{Width: 8, Height: 8, FrameRate: 200, PixelFormat: frame.FormatRGBA},
		},
	})
	cat := catalog.New(b, nil, nil)
	sess := session.New(b, nil, nil, nil)
	t.Cleanup(sess.Close)

	server := NewServer(&Options{
		AuthUsername: "admin",
		AuthPassword: "secret",
		Backend:      b,
		Catalog:      cat,
		Session:      sess,
	})

	ts := httptest.NewServer(server.GetMux())
	t.Cleanup(ts.Close)
	return ts, server
}

func doRequest(t *testing.T, method, url string, body []byte, auth bool) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.SetBasicAuth("admin", "secret")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthNoAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/health", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestDevicesRequireAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/devices", nil, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/devices", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Devices []struct {
			DeviceID string `json:"device_id"`
		} `json:"devices"`
		Count int `json:"count"`
	}
	decodeBody(t, resp, &body)
	if body.Count != 1 || body.Devices[0].DeviceID != "sim-0" {
		t.Errorf("devices = %+v", body)
	}
}

func TestDeviceCapabilities(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/devices/sim-0/capabilities", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		DeviceID     string `json:"device_id"`
		Capabilities []struct {
			Width int `json:"width"`
		} `json:"capabilities"`
	}
	decodeBody(t, resp, &body)
	if body.DeviceID != "sim-0" || len(body.Capabilities) != 1 || body.Capabilities[0].Width != 8 {
		t.Errorf("capabilities = %+v", body)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/devices/ghost/capabilities", nil, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", resp.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts, srv := newTestServer(t)

	// Idle at first
	resp := doRequest(t, http.MethodGet, ts.URL+"/api/session", nil, true)
	var status struct {
		State string `json:"state"`
	}
	decodeBody(t, resp, &status)
	if status.State != "idle" {
		t.Fatalf("initial state = %q, want idle", status.State)
	}

	// Start with default device selection
	resp = doRequest(t, http.MethodPost, ts.URL+"/api/session/start", []byte(`{}`), true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want 202", resp.StatusCode)
	}

	// Wait for the async startup to settle
	deadline := time.After(2 * time.Second)
	for srv.session.State() != session.StateRunning {
		select {
		case <-deadline:
			t.Fatalf("session never reached running, state = %s", srv.session.State())
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Second start conflicts
	resp = doRequest(t, http.MethodPost, ts.URL+"/api/session/start", []byte(`{}`), true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("double start status = %d, want 409", resp.StatusCode)
	}

	// Stop
	resp = doRequest(t, http.MethodPost, ts.URL+"/api/session/stop", nil, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", resp.StatusCode)
	}
	if got := srv.session.State(); got != session.StateIdle {
		t.Errorf("state after stop = %s, want idle", got)
	}
}

func TestSessionStartUnknownDevice(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/session/start", []byte(`{"device_id":"ghost"}`), true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPreviewSizeFallsBackTo16x9(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/session/preview-size?width=1000&height=1000", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	decodeBody(t, resp, &body)
	if body.Width != 1000 || body.Height != 562 {
		t.Errorf("preview size = %dx%d, want 1000x562", body.Width, body.Height)
	}
}

func TestCORSPreflightAndHeaders(t *testing.T) {
	ts, _ := newTestServer(t)

	// Preflight is answered before routing, without auth
	resp := doRequest(t, http.MethodOptions, ts.URL+"/api/devices", nil, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("preflight Allow-Origin = %q, want *", got)
	}
	if resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Error("preflight missing Allow-Methods header")
	}

	// Regular API responses carry the CORS headers too
	resp = doRequest(t, http.MethodGet, ts.URL+"/api/health", nil, false)
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("response Allow-Origin = %q, want *", got)
	}
}
