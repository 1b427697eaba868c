package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTutor(t *testing.T) {
	m := New()
	m.ObserveTutor(nil, time.Second)
	m.ObserveTutor(errors.New("boom"), time.Second)
	m.ObserveTutor(errors.New("boom"), time.Second)

	if got := testutil.ToFloat64(m.TutorInvocationsTotal.WithLabelValues(OutcomeSuccess)); got != 1 {
		t.Fatalf("success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TutorInvocationsTotal.WithLabelValues(OutcomeFailure)); got != 2 {
		t.Fatalf("failure count = %v, want 2", got)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.WorkspaceCreated()
	m.ObserveHTTP(http.MethodPost, "POST /api/workspaces", http.StatusCreated, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"esol_workspaces_created_total 1",
		`esol_http_requests_total{method="POST",route="POST /api/workspaces",status="201"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.WorkspaceCreated()
	m.RateLimited()
	m.ObserveTutor(nil, time.Second)
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
}
