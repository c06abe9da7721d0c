package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCountsRequestsAndErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("crm", reg)

	m.Observe(http.MethodGet, "/api/cases", http.StatusOK, 10*time.Millisecond)
	m.Observe(http.MethodGet, "/api/cases", http.StatusInternalServerError, 5*time.Millisecond)

	if got := testutil.ToFloat64(m.RequestCount.WithLabelValues("GET", "/api/cases", "200")); got != 1 {
		t.Fatalf("expected 1 ok request, got %v", got)
	}
	if got := testutil.ToFloat64(m.ErrorsCount.WithLabelValues("GET", "/api/cases")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := New("crm", reg)
	second := New("crm", reg)

	second.SessionEvent("created")
	if got := testutil.ToFloat64(first.SessionEvents.WithLabelValues("created")); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("crm", reg)
	m.Observe(http.MethodPost, "/api/users/login", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "crm_http_requests_total") {
		t.Fatalf("expected request counter in output, got %s", rec.Body.String())
	}
}
