package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/relaybot/telemetry"
)

func TestRootOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	NewMux().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "Bot server running" {
		t.Fatalf("unexpected body %q", got)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("missing correlation id header")
	}
}

func TestRootReusesCorrelationID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rr := httptest.NewRecorder()

	NewMux().ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Fatalf("correlation id = %q, want abc-123", got)
	}
}

func TestOnlyRootIsRouted(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusNotFound},
		{http.MethodGet, "/metrics", http.StatusNotFound},
		{http.MethodGet, "/anything/else", http.StatusNotFound},
		{http.MethodPost, "/", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/", http.StatusMethodNotAllowed},
	}
	h := NewMux()
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rr.Code, tt.want)
		}
	}
}

func TestMetricsMux(t *testing.T) {
	telemetry.Init()
	telemetry.IncEventsReceived()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	NewMetricsMux().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "relaybot_events_received_total") {
		t.Fatal("metrics output missing relaybot_events_received_total")
	}
}

func TestNewServerTimeouts(t *testing.T) {
	h := NewMux()
	srv := NewServer(":3000", h)
	if srv.Addr != ":3000" || srv.Handler == nil {
		t.Fatalf("server = %+v", srv)
	}
	if srv.ReadHeaderTimeout == 0 || srv.ReadTimeout == 0 || srv.WriteTimeout == 0 || srv.IdleTimeout == 0 {
		t.Fatalf("timeouts not set: %+v", srv)
	}
}
