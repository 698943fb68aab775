// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "z_novel_ctx"
)

var (
	// 切分/索引指标
	ChunksProduced = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manuscript",
			Name:      "chunks_produced_total",
			Help:      "Total number of chunks produced by the segmenter",
		},
	)

	ChunkTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "manuscript",
			Name:      "chunk_tokens",
			Help:      "Estimated token count per chunk",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000},
		},
	)

	ChunkRelations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "manuscript",
			Name:      "chunk_relations",
			Help:      "Number of related chunks per chunk",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		},
	)

	ExtractionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manuscript",
			Name:      "extraction_failures_total",
			Help:      "Total number of entity extraction failures",
		},
	)

	// 推理日志指标
	ThoughtsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reasoning",
			Name:      "thoughts_total",
			Help:      "Total number of processed thoughts",
		},
		[]string{"kind", "status"}, // kind: append/revision
	)

	BranchMerges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reasoning",
			Name:      "merges_total",
			Help:      "Total number of branch merges",
		},
		[]string{"status"},
	)

	// Prompt 组装指标
	PromptsAssembled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prompt",
			Name:      "assembled_total",
			Help:      "Total number of assembled prompts",
		},
		[]string{"template", "status"},
	)

	PromptContextElements = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "prompt",
			Name:      "context_elements",
			Help:      "Number of contextual elements per assembled prompt",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"template"},
	)

	PromptRenders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prompt",
			Name:      "renders_total",
			Help:      "Total number of prompt renders",
		},
		[]string{"status"},
	)

	PromptRenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "prompt",
			Name:      "render_duration_seconds",
			Help:      "Prompt render latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	// 会话指标
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Current number of open analysis sessions",
		},
	)

	SnapshotOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "snapshot_ops_total",
			Help:      "Total number of session snapshot load/save operations",
		},
		[]string{"op", "status"},
	)
)

// StatusLabel 将错误转换为指标 status 标签
func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
