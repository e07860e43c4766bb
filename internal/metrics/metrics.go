// Package metrics provides Prometheus metrics for probing, encoder
// invocations and requests. Metrics live on a private registry and are
// exported once at exit with WriteTextfile (node_exporter textfile format).
// Labels are bounded enums only: no paths or request IDs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every sizefit metric.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// ProbeStrategyTotal counts duration strategy outcomes by strategy and result (ok/failed).
	ProbeStrategyTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sizefit_probe_strategy_total",
		Help: "Duration probing strategy outcomes, by strategy and result.",
	}, []string{"strategy", "result"})

	// InvocationsTotal counts encoder invocations by media kind and result.
	InvocationsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sizefit_encoder_invocations_total",
		Help: "Encoder invocations, by media kind and result (ok, failed, timeout, cancelled).",
	}, []string{"kind", "result"})

	// InvocationSeconds observes wall time per encoder invocation.
	InvocationSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sizefit_encoder_invocation_seconds",
		Help:    "Encoder invocation wall time in seconds, by media kind.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"kind"})

	// ProcessKillsTotal counts process-group terminations by signal.
	ProcessKillsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sizefit_process_kills_total",
		Help: "Encoder process groups signalled on timeout or cancel, by signal.",
	}, []string{"signal"})

	// RequestsTotal counts completed requests by kind and outcome (failure kind or "ok").
	RequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sizefit_requests_total",
		Help: "Compression requests, by media kind and outcome.",
	}, []string{"kind", "outcome"})

	// SearchAttempts observes how many encoder invocations each request needed.
	SearchAttempts = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sizefit_search_attempts",
		Help:    "Encoder invocations per request, by media kind.",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 10, 14, 20},
	}, []string{"kind"})

	// TargetDeviationRatio observes (size-target)/target for target-driven requests.
	TargetDeviationRatio = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sizefit_target_deviation_ratio",
		Help:    "Relative deviation of final size from target, by media kind.",
		Buckets: []float64{-0.5, -0.2, -0.1, -0.05, -0.02, 0, 0.02, 0.05, 0.1, 0.2, 0.5},
	}, []string{"kind"})
)

// RecordProbeStrategy increments the strategy outcome counter.
func RecordProbeStrategy(strategy string, ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	ProbeStrategyTotal.WithLabelValues(strategy, result).Inc()
}

// RecordInvocation counts one encoder run and its duration.
func RecordInvocation(kind, result string, elapsed time.Duration) {
	InvocationsTotal.WithLabelValues(kind, result).Inc()
	InvocationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordKill counts a signal sent to an encoder process group.
func RecordKill(signal string) {
	ProcessKillsTotal.WithLabelValues(signal).Inc()
}

// RecordRequest counts one finished request. target is 0 when the request
// used an explicit parameter; deviation is then not observed.
func RecordRequest(kind, outcome string, invocations int, size, target int64) {
	RequestsTotal.WithLabelValues(kind, outcome).Inc()
	if invocations > 0 {
		SearchAttempts.WithLabelValues(kind).Observe(float64(invocations))
	}
	if target > 0 && size > 0 {
		TargetDeviationRatio.WithLabelValues(kind).Observe(float64(size-target) / float64(target))
	}
}

// WriteTextfile writes the registry in Prometheus text format to path.
// The write is atomic (temp file + rename).
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
