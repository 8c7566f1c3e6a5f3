package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval-and-generation pipeline metrics.
var (
	RetrievalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insight",
			Name:      "retrievals_total",
			Help:      "Total retrieval attempts",
		},
		[]string{"status"}, // "ok" / "empty" / "error"
	)

	RerankFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "insight",
			Name:      "rerank_fallbacks_total",
			Help:      "Retrievals that fell back to vector-search order after a rerank failure",
		},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insight",
			Name:      "generations_total",
			Help:      "Total answer generations by query label and status",
		},
		[]string{"label", "status"}, // status "ok" / "error"
	)

	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "insight",
			Name:      "generation_duration_seconds",
			Help:      "Time from prompt dispatch to stream end",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	IndexedChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "insight",
			Name:      "indexed_chunks_total",
			Help:      "Chunks successfully upserted into the vector index",
		},
	)

	IndexBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insight",
			Name:      "index_batches_total",
			Help:      "Ingestion batches by outcome",
		},
		[]string{"status"}, // "ok" / "failed"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalsTotal)
	prometheus.MustRegister(RerankFallbacksTotal)
	prometheus.MustRegister(GenerationsTotal)
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(IndexedChunksTotal)
	prometheus.MustRegister(IndexBatchesTotal)
	pipelineMetricsRegistered = true
}
