package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepscan_scan_duration_seconds",
			Help:    "End-to-end scan duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 45, 60},
		},
		[]string{"kind"},
	)

	ScanTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepscan_scan_total",
			Help: "Total number of scans processed",
		},
		[]string{"kind", "status"},
	)

	ScanRiskTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepscan_scan_risk_total",
			Help: "Completed scans by risk tier and media type",
		},
		[]string{"risk", "media_type"},
	)

	BulkItemsScanned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepscan_bulk_items_scanned",
			Help:    "Items per bulk scan request after truncation",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	ResolverExtractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepscan_resolver_extractions_total",
			Help: "Media resolver outcomes",
		},
		[]string{"outcome"},
	)

	InferenceFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deepscan_inference_contract_fallbacks_total",
			Help: "Times the gateway fell back to the legacy contract",
		},
	)

	InferenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepscan_inference_errors_total",
			Help: "Inference failures by kind",
		},
		[]string{"kind"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepscan_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepscan_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ThreatScoreObserved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepscan_threat_score",
			Help:    "Threat scores of completed scans",
			Buckets: []float64{10, 20, 30, 40, 45, 50, 60, 70, 75, 80, 90, 100},
		},
	)
)

func Init() {
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(ScanTotal)
	prometheus.MustRegister(ScanRiskTotal)
	prometheus.MustRegister(BulkItemsScanned)
	prometheus.MustRegister(ResolverExtractions)
	prometheus.MustRegister(InferenceFallbacks)
	prometheus.MustRegister(InferenceErrors)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ThreatScoreObserved)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
