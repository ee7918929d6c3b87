package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestMetricsExposition(t *testing.T) {
	m := New()

	done := m.ListenerConnected("sync")
	m.ListenerConnected("ondemand")
	m.BytesSent("sync", 4096)
	m.BytesSent("sync", 0)
	m.TrackStarted("sync")
	m.Selection("fixed")
	m.Import("ok")
	m.Import("bad_status")
	m.ObserveRequest(http.MethodGet, http.StatusOK, 5*time.Millisecond, false)
	m.ObserveRequest(http.MethodGet, http.StatusOK, time.Minute, true)
	m.TrackGauge(func() int { return 7 })

	body := scrape(t, m)
	for _, want := range []string{
		`home_radio_listeners{mode="sync"} 1`,
		`home_radio_listeners{mode="ondemand"} 1`,
		`home_radio_stream_bytes_sent_total{mode="sync"} 4096`,
		`home_radio_track_starts_total{mode="sync"} 1`,
		`home_radio_selections_total{kind="fixed"} 1`,
		`home_radio_imports_total{result="bad_status"} 1`,
		`home_radio_http_requests_total{code="200",method="GET"} 2`,
		`home_radio_http_request_duration_seconds_count{method="GET"} 1`,
		`home_radio_library_tracks 7`,
		`go_goroutines`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in exposition:\n%s", want, body)
		}
	}

	done()
	if body := scrape(t, m); !strings.Contains(body, `home_radio_listeners{mode="sync"} 0`) {
		t.Fatalf("expected listener gauge to drop after disconnect")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ListenerConnected("sync")()
	m.BytesSent("sync", 10)
	m.TrackStarted("sync")
	m.Selection("random")
	m.Import("ok")
	m.ObserveRequest(http.MethodPost, http.StatusBadRequest, time.Second, false)
	m.TrackGauge(func() int { return 1 })
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics handler, got %d", rec.Code)
	}
}
