package policy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Policy evaluation metrics
	policyEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_policy_evaluations_total",
			Help: "Total number of publish policy evaluations",
		},
		[]string{"decision", "mode"},
	)

	policyEvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandcast_policy_evaluation_duration_seconds",
			Help:    "Time spent evaluating policies",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		},
		[]string{"mode"},
	)

	policyErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_policy_errors_total",
			Help: "Total number of policy evaluation errors",
		},
		[]string{"error_type", "mode"},
	)

	policyDenyReasons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_policy_deny_reasons_total",
			Help: "Count of policy denials by reason",
		},
		[]string{"reason", "mode"},
	)

	// Policy load metrics
	policyLoadTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brandcast_policy_load_timestamp_seconds",
			Help: "Timestamp of last successful policy load",
		},
		[]string{"policy_source"},
	)

	policyCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brandcast_policy_files_loaded",
			Help: "Number of policy files currently loaded",
		},
		[]string{"policy_source"},
	)

	policyCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brandcast_policy_cache_hits_total",
			Help: "Total number of policy cache hits",
		},
	)

	policyCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brandcast_policy_cache_misses_total",
			Help: "Total number of policy cache misses",
		},
	)
)

// RecordEvaluation records a policy evaluation result
func RecordEvaluation(decision, mode string, duration float64) {
	policyEvaluations.WithLabelValues(decision, mode).Inc()
	policyEvaluationDuration.WithLabelValues(mode).Observe(duration)
}

// RecordError records a policy evaluation error
func RecordError(errorType, mode string) {
	policyErrors.WithLabelValues(errorType, mode).Inc()
}

// RecordDenyReason records one deny reason, truncated to keep label size bounded.
func RecordDenyReason(reason, mode string) {
	policyDenyReasons.WithLabelValues(truncateString(reason, 50), mode).Inc()
}

// RecordPolicyLoad records successful policy loading
func RecordPolicyLoad(source string, count int, timestamp float64) {
	policyLoadTime.WithLabelValues(source).Set(timestamp)
	policyCount.WithLabelValues(source).Set(float64(count))
}

// RecordCache records a decision cache lookup.
func RecordCache(hit bool) {
	if hit {
		policyCacheHits.Inc()
		return
	}
	policyCacheMisses.Inc()
}

// truncateString truncates a string to a maximum length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
