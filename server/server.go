// Package server 提供推理服务的 HTTP 接口。
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rushteam/homeprice/batch"
	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/pipeline"
)

// APIKeyHeader 是携带 API Key 的请求头
const APIKeyHeader = "X-API-Key"

// Predictor 是 HTTP 层依赖的推理能力（*pipeline.Pipeline 满足该接口）
type Predictor interface {
	Predict(ctx context.Context, records []core.RawRecord) (*core.Prediction, error)
	Health() pipeline.Health
	Reload(ctx context.Context) error
}

// Batcher 是批处理能力（*batch.Runner 满足该接口）
type Batcher interface {
	Run(ctx context.Context, date time.Time) (*batch.Summary, error)
	Latest(ctx context.Context, limit int) (*batch.Latest, error)
}

// Options HTTP 层参数
type Options struct {
	// APIKey 为空时不校验
	APIKey string
	// RateLimit 每个 IP 每分钟请求数，0 表示不限制
	RateLimit    int
	MaxBodyBytes int64
	MaxRecords   int
	// MetricsPath 为空时不暴露 Prometheus 指标
	MetricsPath string
}

// Server 把 Predictor 和 Batcher 暴露为 HTTP 接口
type Server struct {
	predictor Predictor
	batcher   Batcher
	opts      Options
	now       func() time.Time
}

// New 创建 HTTP 服务；batcher 可以为 nil（批处理接口返回 503）
func New(p Predictor, b Batcher, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = 10000
	}
	return &Server{predictor: p, batcher: b, opts: opts, now: time.Now}
}

// Handler 返回完整的路由
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDWithLogging)
	r.Use(chimiddleware.RealIP)
	r.Use(recoverer)
	r.Use(accessLog)
	if s.opts.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.opts.RateLimit, time.Minute))
	}

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/latest_predictions", s.handleLatest)
	if s.opts.MetricsPath != "" {
		r.Handle(s.opts.MetricsPath, promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(requireAPIKey(s.opts.APIKey))
		r.Post("/predict", s.handlePredict)
		r.Post("/run_batch", s.handleRunBatch)
		r.Post("/reload", s.handleReload)
	})
	return r
}
