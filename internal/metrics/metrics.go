package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ErlanBelekov/referral-tracker/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "referrals"

var (
	// Candidate metrics

	CandidateOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidate_operations_total",
		Help:      "Candidate mutations, by operation and outcome kind.",
	}, []string{"op", "outcome"})

	// Attachment metrics

	AttachmentOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "attachment_operation_duration_seconds",
		Help:      "Latency of attachment store calls.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"op", "outcome"})

	AttachmentCleanupFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attachment_cleanup_failures_total",
		Help:      "Attachments that could not be deleted and are left for the janitor.",
	})

	// Janitor metrics

	JanitorDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "janitor_deleted_total",
		Help:      "Orphaned attachments deleted by the janitor.",
	})

	JanitorCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "janitor_cycle_duration_seconds",
		Help:      "Time taken for one janitor sweep.",
		Buckets:   prometheus.DefBuckets,
	})

	// Events

	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Lifecycle events handed to the producer, by outcome.",
	}, []string{"outcome"})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})

	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter, by backend.",
	}, []string{"backend"})
)

func Register() {
	prometheus.MustRegister(
		CandidateOpsTotal,
		AttachmentOpDuration,
		AttachmentCleanupFailuresTotal,
		JanitorDeletedTotal,
		JanitorCycleDuration,
		EventsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
		RateLimitedTotal,
	)
}

// ObserveAttachment records one attachment store call started at start.
func ObserveAttachment(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	AttachmentOpDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

// NewServer serves /metrics plus liveness and readiness probes.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status != health.StatusUp {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(result)
}
