package model

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/homeprice/pkg/logging"
)

// RPCOptions 远程模型服务的调用参数
type RPCOptions struct {
	Endpoint string        `yaml:"endpoint" envconfig:"ENDPOINT"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	// FailureThreshold 连续失败多少次后熔断
	FailureThreshold uint32 `yaml:"failure_threshold" envconfig:"FAILURE_THRESHOLD"`
	// OpenTimeout 熔断后多久进入半开状态
	OpenTimeout time.Duration `yaml:"open_timeout" envconfig:"OPEN_TIMEOUT"`
}

// RPCModel 通过 HTTP 调用外部模型服务（XGBoost/TF Serving/TorchServe 等）的 Regressor 实现，
// 调用经过熔断器保护，服务不可用时快速失败而不是拖住每个请求。
type RPCModel struct {
	Endpoint string
	Columns  []string
	Client   *http.Client
	breaker  *gobreaker.CircuitBreaker[[]float64]
}

// NewRPCModel 创建远程模型；columns 是请求中每行特征的名字（schema 顺序）
func NewRPCModel(opts RPCOptions, columns []string) *RPCModel {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout == 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "model-rpc",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("model rpc breaker state changed")
		},
	}
	return &RPCModel{
		Endpoint: opts.Endpoint,
		Columns:  columns,
		Client:   &http.Client{Timeout: opts.Timeout},
		breaker:  gobreaker.NewCircuitBreaker[[]float64](settings),
	}
}

func (m *RPCModel) Name() string { return "rpc" }

// BreakerState 返回熔断器状态（closed/half-open/open）
func (m *RPCModel) BreakerState() string {
	return m.breaker.State().String()
}

// PredictBatch 调用远程模型服务进行批量预测。
// 请求格式（JSON）：
//
//	{"feature_names": ["bedrooms", ...], "instances": [[3, 2, ...], ...]}
//
// 响应格式（JSON）：
//
//	{"predictions": [512000.5, ...]}
func (m *RPCModel) PredictBatch(ctx context.Context, vectors [][]float64) ([]float64, error) {
	if len(vectors) == 0 {
		return []float64{}, nil
	}
	return m.breaker.Execute(func() ([]float64, error) {
		return m.call(ctx, vectors)
	})
}

func (m *RPCModel) call(ctx context.Context, vectors [][]float64) ([]float64, error) {
	body, err := json.Marshal(map[string]any{
		"feature_names": m.Columns,
		"instances":     vectors,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rpc error: status=%d, body=%s", resp.StatusCode, string(msg))
	}

	var result struct {
		Predictions []float64 `json:"predictions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Predictions) != len(vectors) {
		return nil, fmt.Errorf("response predictions count mismatch: expected %d, got %d", len(vectors), len(result.Predictions))
	}
	return result.Predictions, nil
}
