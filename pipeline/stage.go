package pipeline

import (
	"time"

	"github.com/rushteam/homeprice/core"
)

// Kind 标记 Predict 中的阶段，方便按阶段打点。
type Kind string

const (
	KindFeatures Kind = "features" // 转换 + 对齐
	KindScore    Kind = "score"    // 模型打分
)

// Observer 观测每次 Predict 调用，例如导出 Prometheus 指标。实现必须并发安全。
type Observer interface {
	ObserveStage(stage Kind, d time.Duration)
	// ObservePrediction 在调用结束时调用一次；err 非空时 p 为 nil
	ObservePrediction(records int, p *core.Prediction, err error)
	// ObserveReload 每次加载快照后调用
	ObserveReload(version string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(Kind, time.Duration)               {}
func (nopObserver) ObservePrediction(int, *core.Prediction, error) {}
func (nopObserver) ObserveReload(string, error)                    {}
