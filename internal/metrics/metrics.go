package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Commit outcomes.
const (
	OutcomeCreated    = "created"
	OutcomeSlotTaken  = "slot_taken"
	OutcomeValidation = "validation"
	OutcomeError      = "error"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	bookingCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "commits_total",
			Help:      "Booking commit attempts by outcome.",
		},
		[]string{"outcome"},
	)

	phaseConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "commit_phase_conflicts_total",
			Help:      "Slot conflicts detected, by the commit phase that caught them.",
		},
		[]string{"phase"},
	)

	slotLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "slot_lookups_total",
			Help:      "Available slot lookups, split by whether the fallback grid was served.",
		},
		[]string{"result"},
	)

	reschedules = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "reschedules_total",
			Help:      "Reschedule attempts by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		bookingCommits,
		phaseConflicts,
		slotLookups,
		reschedules,
		httpRequests,
		httpDuration,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordCommit(outcome string) {
	bookingCommits.WithLabelValues(outcome).Inc()
}

func RecordPhaseConflict(phase string) {
	phaseConflicts.WithLabelValues(phase).Inc()
}

func RecordSlotLookup(fallback bool) {
	result := "ok"
	if fallback {
		result = "fallback"
	}
	slotLookups.WithLabelValues(result).Inc()
}

func RecordReschedule(outcome string) {
	reschedules.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one finished request. route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
