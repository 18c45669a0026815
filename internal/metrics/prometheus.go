package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_factory_request_duration_seconds",
			Help:    "Pipeline request processing duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"operation"},
	)

	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_factory_requests_total",
			Help: "Total number of pipeline requests processed",
		},
		[]string{"operation", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_factory_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_factory_llm_calls_total",
			Help: "LLM calls by operation and decoded outcome",
		},
		[]string{"operation", "outcome"},
	)

	GenerativeProvenance = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_factory_generative_results_total",
			Help: "Generative results by operation and provenance (generated or heuristic)",
		},
		[]string{"operation", "provenance"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "platform_factory_llm_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)

	ConfidenceScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_factory_confidence_score",
			Help:    "Confidence scores reported by the classifier and analyzer",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"source"},
	)

	SectorClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_factory_sector_classified_total",
			Help: "Requirement texts classified per sector",
		},
		[]string{"sector"},
	)

	BuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_factory_builds_total",
			Help: "Scaffold builds by terminal status",
		},
		[]string{"status"},
	)

	GeneratedFiles = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "platform_factory_generated_files_count",
			Help:    "Number of files per generated scaffold",
			Buckets: []float64{5, 10, 15, 20, 25, 30},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_factory_build_store_hits_total",
			Help: "Build store lookups that found a record",
		},
		[]string{"store"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_factory_build_store_misses_total",
			Help: "Build store lookups that found nothing",
		},
		[]string{"store"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "platform_factory_rate_limited_total",
			Help: "Requests rejected by the per-caller rate limiter",
		},
	)

	ArchiveBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "platform_factory_archive_bytes",
			Help:    "Size of packaged scaffold archives",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 10),
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(RequestTotal)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(LLMCalls)
		prometheus.MustRegister(GenerativeProvenance)
		prometheus.MustRegister(BreakerState)
		prometheus.MustRegister(ConfidenceScore)
		prometheus.MustRegister(SectorClassified)
		prometheus.MustRegister(BuildsTotal)
		prometheus.MustRegister(GeneratedFiles)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(RateLimited)
		prometheus.MustRegister(ArchiveBytes)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
