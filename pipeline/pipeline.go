package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/feature"
	"github.com/rushteam/homeprice/pkg/logging"
)

// ServiceName 出现在健康检查响应中
const ServiceName = "housing-api"

// 健康状态
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Pipeline 是推理入口：RawRecord -> 转换 -> 对齐 -> 打分。
// HTTP 和批处理共用同一个 Pipeline，保证两条路径的特征完全一致。
//
// 当前快照通过 atomic.Pointer 持有，Reload 构建完整的新快照后整体替换；
// 加载失败时保留旧快照。
type Pipeline struct {
	loader   Loader
	monitor  feature.Monitor
	observer Observer

	snap    atomic.Pointer[Snapshot]
	lastErr atomic.Pointer[loadFailure]
}

type loadFailure struct {
	err error
	at  time.Time
}

// Option 配置 Pipeline
type Option func(*Pipeline)

// WithMonitor 设置特征监控（降级、补齐、跳过计数）
func WithMonitor(m feature.Monitor) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.monitor = m
		}
	}
}

// WithObserver 设置调用观测（阶段耗时、预测数、加载结果）
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// New 创建 Pipeline。不会立即加载产物，需要调用 Reload。
func New(loader Loader, opts ...Option) *Pipeline {
	p := &Pipeline{
		loader:   loader,
		monitor:  feature.NopMonitor{},
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reload 通过 Loader 构建新快照并替换当前快照。
// 失败时当前快照不变，错误会记录下来供 Health 与 Predict 使用。
func (p *Pipeline) Reload(ctx context.Context) error {
	if p.loader == nil {
		return fmt.Errorf("pipeline has no loader")
	}
	start := time.Now()
	snap, err := p.loader.Load(ctx)
	if err == nil && snap == nil {
		err = core.ErrModelNotLoaded
	}
	if err != nil {
		p.lastErr.Store(&loadFailure{err: err, at: time.Now()})
		p.observer.ObserveReload("", err)
		logging.Ctx(ctx).Error().Err(err).Bool("kept_previous", p.snap.Load() != nil).Msg("artifact reload failed")
		return err
	}
	p.Swap(snap)
	p.observer.ObserveReload(snap.Version, nil)
	logging.Ctx(ctx).Info().
		Str("version", snap.Version).
		Str("model_type", snap.Engine.ModelType()).
		Int("n_features", snap.Engine.Width()).
		Dur("took", time.Since(start)).
		Msg("snapshot loaded")
	return nil
}

// Swap 直接替换当前快照（并清除上次的加载错误），返回旧快照。
func (p *Pipeline) Swap(snap *Snapshot) *Snapshot {
	old := p.snap.Swap(snap)
	p.lastErr.Store(nil)
	return old
}

// Snapshot 返回当前快照，尚未加载时为 nil
func (p *Pipeline) Snapshot() *Snapshot {
	return p.snap.Load()
}

// LastError 返回最近一次失败加载的错误；最近一次加载成功时为 nil
func (p *Pipeline) LastError() error {
	if f := p.lastErr.Load(); f != nil {
		return f.err
	}
	return nil
}

// Predict 对一批记录做推理。
//
//   - 单条记录无效或命中异常值：记入 Skipped，不影响其他记录
//   - 没有快照、对齐失败或打分失败：返回 *core.PredictionError，不返回任何部分结果
//
// Results 与输入顺序一致，len(Results)+len(Skipped) == len(records)。
func (p *Pipeline) Predict(ctx context.Context, records []core.RawRecord) (*core.Prediction, error) {
	pred, err := p.predict(ctx, records)
	p.observer.ObservePrediction(len(records), pred, err)
	return pred, err
}

func (p *Pipeline) predict(ctx context.Context, records []core.RawRecord) (*core.Prediction, error) {
	log := logging.Ctx(ctx)
	snap := p.snap.Load()
	if snap == nil {
		cause := p.LastError()
		if cause == nil {
			cause = core.ErrModelNotLoaded
		}
		return nil, &core.PredictionError{Err: cause}
	}

	start := time.Now()
	pending := make([]core.PredictionResult, 0, len(records))
	vectors := make([][]float64, 0, len(records))
	skipped := make([]core.SkippedRecord, 0)

	for i, rec := range records {
		row, err := snap.Transformer.Transform(rec)
		if err != nil {
			skip, ok := skippedRecord(i, rec, err)
			if !ok {
				return nil, &core.PredictionError{Err: fmt.Errorf("record %d: %w", i, err)}
			}
			skipped = append(skipped, skip)
			p.monitor.RecordSkipped(ctx, skip.Kind, skip.Field)
			log.Debug().Int("index", i).Str("id", rec.ID).Str("kind", string(skip.Kind)).Str("reason", skip.Reason).Msg("record skipped")
			continue
		}
		aligned, err := snap.Aligner.Align(row.Features)
		if err != nil {
			return nil, &core.PredictionError{Err: fmt.Errorf("record %d: %w", i, err)}
		}
		for _, fb := range row.Fallbacks {
			p.monitor.RecordFallback(ctx, fb)
		}
		for _, name := range aligned.Substituted {
			p.monitor.RecordSubstitution(ctx, name)
		}
		pending = append(pending, core.PredictionResult{
			Index:       i,
			ID:          rec.ID,
			Actual:      rec.Actual(),
			Substituted: aligned.Substituted,
			Fallbacks:   row.Fallbacks,
		})
		vectors = append(vectors, aligned.Vector)
	}
	p.observer.ObserveStage(KindFeatures, time.Since(start))

	if len(vectors) > 0 {
		scoreStart := time.Now()
		scores, err := snap.Engine.Score(ctx, vectors)
		p.observer.ObserveStage(KindScore, time.Since(scoreStart))
		if err != nil {
			return nil, &core.PredictionError{Err: toRecordRange(err, pending)}
		}
		for i := range pending {
			pending[i].Predicted = scores[i]
		}
	}

	log.Info().
		Int("records", len(records)).
		Int("predicted", len(pending)).
		Int("skipped", len(skipped)).
		Str("version", snap.Version).
		Dur("took", time.Since(start)).
		Msg("prediction complete")
	return &core.Prediction{Results: pending, Skipped: skipped}, nil
}

// skippedRecord 把记录级软错误转换为 SkippedRecord；其他错误返回 false。
func skippedRecord(index int, rec core.RawRecord, err error) (core.SkippedRecord, bool) {
	var invalid *core.InvalidRecordError
	if errors.As(err, &invalid) {
		return core.SkippedRecord{
			Index:  index,
			ID:     rec.ID,
			Kind:   core.SkipInvalid,
			Field:  invalid.Field,
			Reason: invalid.Error(),
		}, true
	}
	var outlier *core.OutlierError
	if errors.As(err, &outlier) {
		return core.SkippedRecord{
			Index:  index,
			ID:     rec.ID,
			Kind:   core.SkipOutlier,
			Reason: outlier.Error(),
		}, true
	}
	return core.SkippedRecord{}, false
}

// toRecordRange 把打分错误中的向量下标区间换算成输入记录下标区间。
func toRecordRange(err error, pending []core.PredictionResult) error {
	var se *core.ScoringError
	if !errors.As(err, &se) || se.Start < 0 || se.End > len(pending) || se.Start >= se.End {
		return err
	}
	return &core.ScoringError{
		Start: pending[se.Start].Index,
		End:   pending[se.End-1].Index + 1,
		Err:   se.Err,
	}
}

// Health 是健康检查的结果
type Health struct {
	Status            string     `json:"status"`
	Service           string     `json:"service"`
	ModelLoaded       bool       `json:"model_loaded"`
	NFeaturesExpected int        `json:"n_features_expected"`
	ModelVersion      string     `json:"model_version,omitempty"`
	ModelType         string     `json:"model_type,omitempty"`
	LoadedAt          *time.Time `json:"loaded_at,omitempty"`
	LastError         string     `json:"error,omitempty"`
}

// Health 只读取当前快照，不会触发加载
func (p *Pipeline) Health() Health {
	h := Health{Status: StatusUnhealthy, Service: ServiceName}
	if err := p.LastError(); err != nil {
		h.LastError = err.Error()
	}
	snap := p.snap.Load()
	if snap == nil {
		return h
	}
	loadedAt := snap.LoadedAt
	h.Status = StatusHealthy
	h.ModelLoaded = true
	h.NFeaturesExpected = snap.Engine.Width()
	h.ModelVersion = snap.Version
	h.ModelType = snap.Engine.ModelType()
	h.LoadedAt = &loadedAt
	return h
}
