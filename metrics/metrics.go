// Package metrics 导出推理服务的 Prometheus 指标。
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/feature"
	"github.com/rushteam/homeprice/pipeline"
)

var (
	// 推理调用
	PredictCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeprice_predict_calls_total",
			Help: "Total number of Predict calls by outcome",
		},
		[]string{"outcome"}, // "ok", "not_loaded", "artifact", "scoring", "error"
	)

	PredictRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeprice_predict_records_total",
			Help: "Records seen by Predict, by result",
		},
		[]string{"result"}, // "predicted", "invalid", "outlier"
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homeprice_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// 特征一致性
	FeatureFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeprice_feature_fallbacks_total",
			Help: "Transform fallbacks (date sentinel, unseen categories)",
		},
		[]string{"fallback"},
	)

	FeatureSubstitutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeprice_feature_substitutions_total",
			Help: "Features filled with a default during alignment",
		},
		[]string{"feature"},
	)

	SkippedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeprice_skipped_records_total",
			Help: "Records skipped by kind and field",
		},
		[]string{"kind", "field"},
	)

	// 产物加载
	Reloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeprice_artifact_reloads_total",
			Help: "Artifact reload attempts by result",
		},
		[]string{"result"},
	)

	ModelInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "homeprice_model_info",
			Help: "Currently loaded model version (value is always 1)",
		},
		[]string{"version"},
	)

	// HTTP
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeprice_api_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	APIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homeprice_api_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// 批处理
	BatchRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeprice_batch_rows_total",
			Help: "Rows processed by batch runs",
		},
		[]string{"result"}, // "read", "predicted", "outlier", "invalid"
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "homeprice_batch_duration_seconds",
			Help:    "Duration of batch runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

// Collector 把 pipeline 和 feature 的回调转换为 Prometheus 指标，
// 同时实现 pipeline.Observer 和 feature.Monitor。
type Collector struct{}

// NewCollector 创建指标采集器
func NewCollector() *Collector { return &Collector{} }

func (Collector) ObserveStage(stage pipeline.Kind, d time.Duration) {
	StageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (Collector) ObservePrediction(records int, p *core.Prediction, err error) {
	PredictCalls.WithLabelValues(outcome(err)).Inc()
	if p == nil {
		return
	}
	PredictRecords.WithLabelValues("predicted").Add(float64(len(p.Results)))
	PredictRecords.WithLabelValues(string(core.SkipInvalid)).Add(float64(p.CountSkipped(core.SkipInvalid)))
	PredictRecords.WithLabelValues(string(core.SkipOutlier)).Add(float64(p.CountSkipped(core.SkipOutlier)))
}

func (Collector) ObserveReload(version string, err error) {
	if err != nil {
		Reloads.WithLabelValues("error").Inc()
		return
	}
	Reloads.WithLabelValues("ok").Inc()
	ModelInfo.Reset()
	ModelInfo.WithLabelValues(version).Set(1)
}

func (Collector) RecordFallback(ctx context.Context, name string) {
	FeatureFallbacks.WithLabelValues(name).Inc()
}

func (Collector) RecordSubstitution(ctx context.Context, name string) {
	FeatureSubstitutions.WithLabelValues(name).Inc()
}

func (Collector) RecordSkipped(ctx context.Context, kind core.SkipKind, field string) {
	SkippedRecords.WithLabelValues(string(kind), field).Inc()
}

func outcome(err error) string {
	var se *core.ScoringError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrModelNotLoaded):
		return "not_loaded"
	case core.IsArtifactMissing(err), core.IsArtifactCorrupt(err):
		return "artifact"
	case errors.As(err, &se):
		return "scoring"
	default:
		return "error"
	}
}

// RecordAPIRequest 记录一次 HTTP 请求
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordBatchRun 记录一次批处理的行数与耗时
func RecordBatchRun(read, predicted, outliers, invalid int, d time.Duration) {
	BatchRows.WithLabelValues("read").Add(float64(read))
	BatchRows.WithLabelValues("predicted").Add(float64(predicted))
	BatchRows.WithLabelValues("outlier").Add(float64(outliers))
	BatchRows.WithLabelValues("invalid").Add(float64(invalid))
	BatchDuration.Observe(d.Seconds())
}

var (
	_ pipeline.Observer = Collector{}
	_ feature.Monitor   = Collector{}
)
