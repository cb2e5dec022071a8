package pipeline

import (
	"fmt"
	"time"

	"github.com/rushteam/homeprice/feature"
	"github.com/rushteam/homeprice/model"
)

// Snapshot 是一组一起加载、一起替换的推理状态：编码器、转换器、对齐器和打分引擎。
// 构造后不可变；Predict 在入口取一次快照，整个调用期间都使用它。
type Snapshot struct {
	Encoders    *feature.EncoderStore
	Transformer *feature.Transformer
	Aligner     *feature.Aligner
	Engine      *model.Engine
	Version     string
	LoadedAt    time.Time
}

// NewSnapshot 用已加载的产物构建快照。outliers 可以为 nil（不做异常值检测）。
func NewSnapshot(es *feature.EncoderStore, m *model.Model, outliers *feature.OutlierPolicy, opts Options) (*Snapshot, error) {
	if es == nil {
		return nil, fmt.Errorf("nil encoder store")
	}
	aligner := feature.NewAligner(es, opts.Align)
	engine, err := model.NewEngine(m, aligner.Width(), opts.BatchSize)
	if err != nil {
		return nil, err
	}
	if m.Version != "" && es.Version() != "" && m.Version != es.Version() {
		return nil, fmt.Errorf("model version %q does not match encoder version %q", m.Version, es.Version())
	}
	return &Snapshot{
		Encoders:    es,
		Transformer: feature.NewTransformer(es, opts.Transform, outliers),
		Aligner:     aligner,
		Engine:      engine,
		Version:     es.Version(),
		LoadedAt:    time.Now(),
	}, nil
}
