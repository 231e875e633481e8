package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mediagen/internal/domain"
)

func TestObserverCountsLifecycle(t *testing.T) {
	var obs Observer
	before := testutil.ToFloat64(JobsFinished.WithLabelValues("video", "fallback"))
	createdBefore := testutil.ToFloat64(JobsCreated.WithLabelValues("video"))

	obs.JobChanged(domain.Job{Kind: domain.JobKindVideo, Status: domain.JobStatusQueued})
	obs.JobChanged(domain.Job{Kind: domain.JobKindVideo, Status: domain.JobStatusPolling})
	obs.JobChanged(domain.Job{Kind: domain.JobKindVideo, Status: domain.JobStatusFallback})

	if got := testutil.ToFloat64(JobsCreated.WithLabelValues("video")) - createdBefore; got != 1 {
		t.Fatalf("expected 1 created, got %v", got)
	}
	if got := testutil.ToFloat64(JobsFinished.WithLabelValues("video", "fallback")) - before; got != 1 {
		t.Fatalf("expected 1 finished, got %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	RateLimitRejects.Inc()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mediagen_rate_limit_rejects_total") {
		t.Fatalf("metric missing from output")
	}
	// second call must not panic on duplicate registration
	Handler()
}
