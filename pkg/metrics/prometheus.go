// Prometheus 指标定义
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActivityDuration 活动执行时长
	ActivityDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finmodel_activity_duration_seconds",
			Help:    "Activity execution duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"activity_name", "status"},
	)

	// StageDuration 模型各阶段耗时 (link/resolve/project/value)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finmodel_stage_duration_seconds",
			Help:    "Model pipeline stage duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"stage", "status"},
	)

	// ValidationWarnings 校验警告计数
	ValidationWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finmodel_validation_warnings_total",
			Help: "Non-fatal validation warnings by kind",
		},
		[]string{"kind"}, // kind: imbalance/linkage/gross_profit_rejected/alignment/assumption_clamped
	)

	// DerivedFields 补全规则触发次数
	DerivedFields = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finmodel_derived_fields_total",
			Help: "Historical fields inferred by derivation rules",
		},
		[]string{"rule"},
	)

	// UnavailableMetrics 无法计算的指标
	UnavailableMetrics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finmodel_unavailable_metrics_total",
			Help: "Ratios or valuation outputs reported as unavailable",
		},
		[]string{"metric"},
	)

	// Recommendations 评级分布
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finmodel_recommendations_total",
			Help: "Valuation recommendations issued",
		},
		[]string{"recommendation"},
	)

	// CacheOperations 缓存命中率
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finmodel_cache_operations_total",
			Help: "Cache operations count",
		},
		[]string{"operation", "result"}, // result: hit/miss/error
	)

	// LLMTokenUsage Token 使用量
	LLMTokenUsage = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finmodel_llm_token_usage_total",
			Help: "Total LLM tokens consumed",
		},
		[]string{"model", "type"}, // type: prompt/completion
	)

	// LLMLatency LLM 调用延迟
	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finmodel_llm_latency_seconds",
			Help:    "LLM inference latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"model", "status"},
	)

	// ErrorsTotal 错误计数
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finmodel_errors_total",
			Help: "Total errors by level and code",
		},
		[]string{"level", "code"},
	)
)
