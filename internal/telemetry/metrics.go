package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediagen/internal/domain"
)

var (
	once sync.Once

	JobsCreated       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mediagen_jobs_created_total", Help: "Jobs registered, by kind"}, []string{"kind"})
	JobsFinished      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mediagen_jobs_finished_total", Help: "Jobs reaching a terminal status"}, []string{"kind", "status"})
	SubmitAttempts    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mediagen_submit_attempts_total", Help: "Provider submission attempts by path and outcome"}, []string{"path", "outcome"})
	PollErrors        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mediagen_poll_errors_total", Help: "Provider status query failures"}, []string{"kind"})
	FallbackArtifacts = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mediagen_fallback_artifacts_total", Help: "Placeholder artifacts generated"}, []string{"kind"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "mediagen_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
	JobsSwept         = prometheus.NewCounter(prometheus.CounterOpts{Name: "mediagen_jobs_swept_total", Help: "Terminal jobs removed by the retention sweep"})
	ArtifactsSwept    = prometheus.NewCounter(prometheus.CounterOpts{Name: "mediagen_artifacts_swept_total", Help: "Artifacts removed by the retention sweep"})
	InFlightGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "mediagen_jobs_inflight", Help: "Jobs with a running task"})
	ProviderLatency   = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediagen_provider_call_seconds",
		Help:    "Latency of provider calls",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"op"})
)

func register() {
	once.Do(func() {
		prometheus.MustRegister(
			JobsCreated,
			JobsFinished,
			SubmitAttempts,
			PollErrors,
			FallbackArtifacts,
			RateLimitRejects,
			JobsSwept,
			ArtifactsSwept,
			InFlightGauge,
			ProviderLatency,
		)
	})
}

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	register()
	return promhttp.Handler()
}

// Observer counts lifecycle events from registry notifications.
type Observer struct{}

// JobChanged implements domain.JobObserver.
func (Observer) JobChanged(job domain.Job) {
	kind := string(job.Kind)
	switch {
	case job.Status == domain.JobStatusQueued:
		JobsCreated.WithLabelValues(kind).Inc()
	case job.Status.Terminal():
		JobsFinished.WithLabelValues(kind, string(job.Status)).Inc()
		if job.Status == domain.JobStatusFallback {
			FallbackArtifacts.WithLabelValues(kind).Inc()
		}
	}
}
