package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 查询管线与入库的Prometheus指标
var (
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperhub_queries_total",
		Help: "Total number of query pipeline runs by terminal state.",
	}, []string{"state"}) // done | failed | no_context

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperhub_query_stage_duration_seconds",
		Help:    "Duration of each query pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	SearchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperhub_search_failures_total",
		Help: "Isolated sub-query failures by modality.",
	}, []string{"modality"}) // fts | vector | embedding

	DocumentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperhub_documents_ingested_total",
		Help: "Total number of documents ingested.",
	})

	ChunksIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperhub_chunks_indexed_total",
		Help: "Total number of chunks indexed across all documents.",
	})
)
