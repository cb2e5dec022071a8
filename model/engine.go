package model

import (
	"context"
	"fmt"
	"math"

	"github.com/rushteam/homeprice/core"
)

// DefaultBatchSize 是未配置时每次调用模型的行数
const DefaultBatchSize = 512

// Engine 持有一个只读模型及其期望的特征宽度，按小批量打分。
// 构造后不可变，替换模型只能整体替换 Engine。
type Engine struct {
	model     *Model
	width     int
	batchSize int
}

// NewEngine 创建打分引擎；width 为 schema 的特征数
func NewEngine(m *Model, width, batchSize int) (*Engine, error) {
	if m == nil || m.Regressor == nil {
		return nil, core.ErrModelNotLoaded
	}
	if width <= 0 {
		return nil, fmt.Errorf("invalid feature width %d", width)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{model: m, width: width, batchSize: batchSize}, nil
}

// Width 返回期望的特征数（n_features_expected）
func (e *Engine) Width() int { return e.width }

// Version 返回模型版本
func (e *Engine) Version() string { return e.model.Version }

// ModelType 返回模型类型
func (e *Engine) ModelType() string { return e.model.Type }

// Regressor 返回底层模型
func (e *Engine) Regressor() Regressor { return e.model.Regressor }

// Score 对向量打分，返回与输入等长、同序的预测值（已做目标逆变换）。
// 任一行宽度不对、模型报错或 panic、输出非有限数时返回 *core.ScoringError，
// 其中 [Start, End) 是受影响的输入下标区间，且不返回任何部分结果。
func (e *Engine) Score(ctx context.Context, vectors [][]float64) ([]float64, error) {
	for i, v := range vectors {
		if len(v) != e.width {
			return nil, &core.ScoringError{Start: i, End: i + 1,
				Err: fmt.Errorf("vector has %d features, expected %d", len(v), e.width)}
		}
	}

	out := make([]float64, 0, len(vectors))
	for start := 0; start < len(vectors); start += e.batchSize {
		end := start + e.batchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		preds, err := e.scoreBatch(ctx, vectors[start:end])
		if err != nil {
			return nil, &core.ScoringError{Start: start, End: end, Err: err}
		}
		for i, p := range preds {
			p = e.model.Transform.Inverse(p)
			if math.IsNaN(p) || math.IsInf(p, 0) {
				return nil, &core.ScoringError{Start: start + i, End: start + i + 1,
					Err: fmt.Errorf("non-finite prediction")}
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func (e *Engine) scoreBatch(ctx context.Context, batch [][]float64) (preds []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model %s panicked: %v", e.model.Regressor.Name(), r)
		}
	}()
	preds, err = e.model.Regressor.PredictBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(preds) != len(batch) {
		return nil, fmt.Errorf("model returned %d predictions for %d rows", len(preds), len(batch))
	}
	return preds, nil
}
