package model

import (
	"context"
	"fmt"
	"math"
)

// Regressor 是回归模型的最小抽象：输入按 schema 顺序排列的特征矩阵，输出每行的预测值。
// 具体实现可以是本地模型（线性/GBDT）或远程 RPC 模型服务。实现必须并发安全。
type Regressor interface {
	Name() string
	PredictBatch(ctx context.Context, vectors [][]float64) ([]float64, error)
}

// TargetTransform 是训练时对目标值做的变换，推理时做逆变换
type TargetTransform string

const (
	TransformNone  TargetTransform = ""
	TransformLog1p TargetTransform = "log1p"
)

// Inverse 把模型输出还原到价格空间
func (t TargetTransform) Inverse(v float64) float64 {
	switch t {
	case TransformLog1p:
		return math.Expm1(v)
	default:
		return v
	}
}

func (t TargetTransform) validate() error {
	switch t {
	case TransformNone, TransformLog1p:
		return nil
	default:
		return fmt.Errorf("unknown target_transform %q", t)
	}
}

// Model 是加载完成的模型产物
type Model struct {
	Regressor Regressor
	Type      string
	Version   string
	Transform TargetTransform
}
