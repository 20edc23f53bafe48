package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Generation gateway metrics
	GenerationCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_generation_calls_total",
			Help: "Total number of generation calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandcast_generation_duration_seconds",
			Help:    "Generation call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"provider"},
	)

	GenerationAbandoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_generation_abandoned_total",
			Help: "Generation calls abandoned after the caller deadline elapsed",
		},
		[]string{"provider"},
	)

	NormalizerPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_normalizer_results_total",
			Help: "Output normalizer results by pass (direct, extracted, failed)",
		},
		[]string{"pass"},
	)

	// Pipeline metrics
	StageRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_stage_runs_total",
			Help: "Sub-agent stage runs by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandcast_stage_duration_seconds",
			Help:    "Sub-agent stage duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_pipeline_runs_total",
			Help: "Campaign analysis runs by number of failed stages",
		},
		[]string{"failed_stages"},
	)

	// Calendar metrics
	CalendarWindows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_calendar_windows_total",
			Help: "Calendar windows by resolution path (structured, normalized, failed)",
		},
		[]string{"template_type", "outcome"},
	)

	CalendarErrorDays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brandcast_calendar_error_days_total",
			Help: "Placeholder error days inserted into calendars",
		},
	)

	// Retrieval metrics
	RetrievalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_retrieval_requests_total",
			Help: "Retrieval requests by outcome (hit, empty, failed)",
		},
		[]string{"outcome"},
	)

	PersistRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_persist_requests_total",
			Help: "Writes into the retrieval store by kind and status",
		},
		[]string{"kind", "status"},
	)

	VectorSearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandcast_vector_search_seconds",
			Help:    "Vector search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_vector_searches_total",
			Help: "Vector searches by collection and status",
		},
		[]string{"collection", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandcast_embedding_seconds",
			Help:    "Embedding generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_embedding_requests_total",
			Help: "Embedding requests by model and status",
		},
		[]string{"model", "status"},
	)

	EmbeddingCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_embedding_cache_hits_total",
			Help: "Embedding cache hits by tier (lru, redis)",
		},
		[]string{"tier"},
	)

	EmbeddingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brandcast_embedding_cache_misses_total",
			Help: "Embedding cache misses",
		},
	)

	// Publishing metrics
	PublishAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandcast_publish_attempts_total",
			Help: "Publish attempts by channel, content type and status",
		},
		[]string{"channel", "content_type", "status"},
	)

	// Workflow metrics
	CampaignsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brandcast_campaigns_started_total",
			Help: "Campaign workflows started",
		},
	)
)

// RecordGenerationMetrics records a completed (or abandoned) generation call
func RecordGenerationMetrics(provider, outcome string, durationSeconds float64) {
	GenerationCalls.WithLabelValues(provider, outcome).Inc()
	GenerationDuration.WithLabelValues(provider).Observe(durationSeconds)
	if outcome == "timeout" {
		GenerationAbandoned.WithLabelValues(provider).Inc()
	}
}

// RecordNormalizerPass records which normalizer pass resolved a payload
func RecordNormalizerPass(pass string) {
	NormalizerPasses.WithLabelValues(pass).Inc()
}

// RecordStageMetrics records a sub-agent run
func RecordStageMetrics(stage, outcome string, durationSeconds float64) {
	StageRuns.WithLabelValues(stage, outcome).Inc()
	StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordWindowMetrics records how a calendar window was resolved
func RecordWindowMetrics(templateType, outcome string, errorDays int) {
	CalendarWindows.WithLabelValues(templateType, outcome).Inc()
	if errorDays > 0 {
		CalendarErrorDays.Add(float64(errorDays))
	}
}

// RecordVectorSearchMetrics records vector search metrics
func RecordVectorSearchMetrics(collection, status string, durationSeconds float64) {
	VectorSearches.WithLabelValues(collection, status).Inc()
	if durationSeconds > 0 {
		VectorSearchLatency.WithLabelValues(collection).Observe(durationSeconds)
	}
}

// RecordEmbeddingMetrics records embedding generation metrics
func RecordEmbeddingMetrics(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
}
