package model

import (
	"context"
	"fmt"
)

// LinearModel 实现线性回归：y = Intercept + sum(Weight_i * Feature_i)。
// 系数在加载时按 schema 解析为向量下标，打分时不再查表。
type LinearModel struct {
	Intercept float64
	Weights   []float64 // 与 schema 的 feature_columns 一一对应，缺失的系数为 0
}

// NewLinearModel 按特征名解析系数；出现 schema 之外的特征名时返回错误
func NewLinearModel(intercept float64, coefficients map[string]float64, columns []string) (*LinearModel, error) {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	weights := make([]float64, len(columns))
	for name, w := range coefficients {
		i, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("coefficient for unknown feature %q", name)
		}
		weights[i] = w
	}
	return &LinearModel{Intercept: intercept, Weights: weights}, nil
}

func (m *LinearModel) Name() string { return "linear" }

func (m *LinearModel) PredictBatch(ctx context.Context, vectors [][]float64) ([]float64, error) {
	out := make([]float64, len(vectors))
	for r, vec := range vectors {
		if len(vec) != len(m.Weights) {
			return nil, fmt.Errorf("row %d: %d features, model expects %d", r, len(vec), len(m.Weights))
		}
		score := m.Intercept
		for i, w := range m.Weights {
			score += w * vec[i]
		}
		out[r] = score
	}
	return out, nil
}
