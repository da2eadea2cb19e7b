package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dthul/discord-bot/internal/models"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}
	return rr.Body.String()
}

func TestHTTPCollectorRecordsRoutePattern(t *testing.T) {
	registry := NewRegistry()
	collector, err := NewHTTPCollector(registry)
	if err != nil {
		t.Fatalf("NewHTTPCollector returned error: %v", err)
	}

	router := chi.NewRouter()
	router.Use(collector.InstrumentHandler)
	router.Get("/schedule_session/{flowID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/schedule_session/12345", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	body := scrape(t, Handler(registry))
	if !strings.Contains(body, `eventsync_http_requests_total{method="GET",route="/schedule_session/{flowID}",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}
	if strings.Contains(body, "12345") {
		t.Fatalf("flow token leaked into labels, body=%q", body)
	}
}

func TestSyncCollector(t *testing.T) {
	registry := NewRegistry()
	collector, err := NewSyncCollector(registry)
	if err != nil {
		t.Fatalf("NewSyncCollector returned error: %v", err)
	}

	collector.ObserveEvent(models.SourceMeetup, "created")
	collector.ObserveEvent(models.SourceMeetup, "created")
	collector.ObservePass(models.SourceMeetup, 2*time.Second, nil)
	collector.ObservePass(models.SourceSwissRPG, time.Second, errors.New("down"))
	collector.ObserveJob("meetup-sync", nil)
	collector.ObserveFlow("migrate", nil)

	if got := testutil.ToFloat64(collector.events.WithLabelValues("meetup", "created")); got != 2 {
		t.Fatalf("expected 2 created events, got %v", got)
	}
	if got := testutil.ToFloat64(collector.jobs.WithLabelValues("meetup-sync", "success")); got != 1 {
		t.Fatalf("expected 1 job run, got %v", got)
	}
	if got := testutil.ToFloat64(collector.lastSuccess.WithLabelValues("meetup")); got == 0 {
		t.Fatal("expected last success timestamp to be set")
	}
	if got := testutil.ToFloat64(collector.lastSuccess.WithLabelValues("swissrpg")); got != 0 {
		t.Fatalf("failed pass must not set last success, got %v", got)
	}
}

func TestNilSyncCollector(t *testing.T) {
	var collector *SyncCollector
	collector.ObserveEvent(models.SourceMeetup, "created")
	collector.ObservePass(models.SourceMeetup, time.Second, nil)
	collector.ObserveJob("job", nil)
	collector.ObserveFlow("direct", nil)
}
