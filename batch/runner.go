package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/metrics"
	"github.com/rushteam/homeprice/pkg/logging"
)

// 默认配置
const (
	DefaultInputPattern   = "raw/{date}.csv"
	DefaultOutputPattern  = "predictions/preds_{date}.csv"
	DefaultSkippedPattern = "predictions/skipped_{date}.csv"
	DefaultDateLayout     = "2006-01-02"
	DefaultChunkSize      = 500
	DefaultWorkers        = 4

	datePlaceholder = "{date}"
)

// ErrNoPredictions 表示还没有任何批量预测输出
var ErrNoPredictions = errors.New("no predictions found")

// Config 批处理配置
type Config struct {
	InputPattern   string `yaml:"input_pattern" envconfig:"INPUT_PATTERN"`
	OutputPattern  string `yaml:"output_pattern" envconfig:"OUTPUT_PATTERN"`
	SkippedPattern string `yaml:"skipped_pattern" envconfig:"SKIPPED_PATTERN"`
	DateLayout     string `yaml:"date_layout" envconfig:"DATE_LAYOUT"`
	ChunkSize      int    `yaml:"chunk_size" envconfig:"CHUNK_SIZE" validate:"gte=0"`
	Workers        int    `yaml:"workers" envconfig:"WORKERS" validate:"gte=0"`
	Format         string `yaml:"format" envconfig:"FORMAT" validate:"omitempty,oneof=csv jsonl"`
}

// WithDefaults 补齐未设置的字段
func (c Config) WithDefaults() Config {
	if c.InputPattern == "" {
		c.InputPattern = DefaultInputPattern
	}
	if c.OutputPattern == "" {
		c.OutputPattern = DefaultOutputPattern
	}
	if c.SkippedPattern == "" {
		c.SkippedPattern = DefaultSkippedPattern
	}
	if c.DateLayout == "" {
		c.DateLayout = DefaultDateLayout
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Format == "" {
		c.Format = FormatCSV
	}
	if c.Format == FormatJSONL {
		c.OutputPattern = replaceExt(c.OutputPattern, ".jsonl")
	}
	return c
}

func replaceExt(p, ext string) string {
	return strings.TrimSuffix(p, path.Ext(p)) + ext
}

// Predictor 是批处理依赖的推理能力（*pipeline.Pipeline 满足该接口）
type Predictor interface {
	Predict(ctx context.Context, records []core.RawRecord) (*core.Prediction, error)
}

// Runner 执行一次批量预测：读取原始 CSV，分块并行推理，按输入顺序写回结果。
// 输入和输出都通过 Store 读写，本地目录与对象存储使用同一套逻辑。
type Runner struct {
	cfg       Config
	store     core.Store
	predictor Predictor
}

// NewRunner 创建批处理执行器
func NewRunner(s core.Store, p Predictor, cfg Config) *Runner {
	return &Runner{cfg: cfg.WithDefaults(), store: s, predictor: p}
}

// Config 返回补齐默认值后的配置
func (r *Runner) Config() Config { return r.cfg }

// Summary 是一次批处理的结果摘要
type Summary struct {
	RunID           string        `json:"run_id"`
	Date            string        `json:"date"`
	Input           string        `json:"input"`
	Output          string        `json:"output"`
	SkippedOutput   string        `json:"skipped_output,omitempty"`
	RowsRead        int           `json:"rows_read"`
	Predicted       int           `json:"rows_predicted"`
	Skipped         int           `json:"rows_skipped"`
	OutliersDropped int           `json:"outliers_dropped"`
	Invalid         int           `json:"invalid"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
}

// Run 对 date 对应的输入文件做批量预测。推理失败时不写任何输出。
func (r *Runner) Run(ctx context.Context, date time.Time) (*Summary, error) {
	sum := &Summary{
		RunID:     uuid.NewString(),
		Date:      date.Format(r.cfg.DateLayout),
		StartedAt: time.Now(),
	}
	logger := logging.Logger().With().Str("run_id", sum.RunID).Str("date", sum.Date).Logger()
	ctx = logging.ContextWithLogger(ctx, logger)

	sum.Input = expand(r.cfg.InputPattern, sum.Date)
	data, err := r.store.Get(ctx, sum.Input)
	if err != nil {
		return nil, fmt.Errorf("读取批处理输入 %s 失败: %w", sum.Input, err)
	}
	records, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sum.Input, err)
	}
	sum.RowsRead = len(records)

	pred, err := r.Predict(ctx, records)
	if err != nil {
		return nil, err
	}
	sum.Predicted = len(pred.Results)
	sum.Skipped = len(pred.Skipped)
	sum.OutliersDropped = pred.CountSkipped(core.SkipOutlier)
	sum.Invalid = pred.CountSkipped(core.SkipInvalid)

	out, err := EncodeRows(Rows(pred), r.cfg.Format)
	if err != nil {
		return nil, err
	}
	sum.Output = expand(r.cfg.OutputPattern, sum.Date)
	if err := r.store.Set(ctx, sum.Output, out); err != nil {
		return nil, fmt.Errorf("写入 %s 失败: %w", sum.Output, err)
	}
	if len(pred.Skipped) > 0 {
		skipped, err := EncodeSkipped(pred.Skipped)
		if err != nil {
			return nil, err
		}
		sum.SkippedOutput = expand(r.cfg.SkippedPattern, sum.Date)
		if err := r.store.Set(ctx, sum.SkippedOutput, skipped); err != nil {
			return nil, fmt.Errorf("写入 %s 失败: %w", sum.SkippedOutput, err)
		}
	}

	sum.Duration = time.Since(sum.StartedAt)
	metrics.RecordBatchRun(sum.RowsRead, sum.Predicted, sum.OutliersDropped, sum.Invalid, sum.Duration)
	logger.Info().
		Str("output", sum.Output).
		Int("rows_read", sum.RowsRead).
		Int("predicted", sum.Predicted).
		Int("outliers", sum.OutliersDropped).
		Int("invalid", sum.Invalid).
		Dur("took", sum.Duration).
		Msg("batch run complete")
	return sum, nil
}

// Predict 把记录切成块并行推理，再按输入顺序拼回；结果与跳过记录的 Index 是全局下标。
// 任何一块失败整体失败。
func (r *Runner) Predict(ctx context.Context, records []core.RawRecord) (*core.Prediction, error) {
	size := r.cfg.ChunkSize
	nChunks := (len(records) + size - 1) / size
	parts := make([]*core.Prediction, nChunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := 0; i < nChunks; i++ {
		i := i
		start := i * size
		end := min(start+size, len(records))
		g.Go(func() error {
			pred, err := r.predictor.Predict(gctx, records[start:end])
			if err != nil {
				return offsetError(err, start)
			}
			for j := range pred.Results {
				pred.Results[j].Index += start
			}
			for j := range pred.Skipped {
				pred.Skipped[j].Index += start
			}
			parts[i] = pred
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &core.Prediction{
		Results: make([]core.PredictionResult, 0, len(records)),
		Skipped: make([]core.SkippedRecord, 0),
	}
	for _, p := range parts {
		out.Results = append(out.Results, p.Results...)
		out.Skipped = append(out.Skipped, p.Skipped...)
	}
	return out, nil
}

// offsetError 把块内的打分区间换算为全局下标
func offsetError(err error, offset int) error {
	var se *core.ScoringError
	if offset == 0 || !errors.As(err, &se) {
		return err
	}
	return &core.PredictionError{Err: &core.ScoringError{Start: se.Start + offset, End: se.End + offset, Err: se.Err}}
}

func expand(pattern, date string) string {
	return strings.ReplaceAll(pattern, datePlaceholder, date)
}

// Latest 是最近一次批量输出的预览
type Latest struct {
	File    string      `json:"file"`
	Rows    int         `json:"rows"`
	Preview []OutputRow `json:"preview"`
}

// Latest 返回按文件名排序最新的输出文件及其前 limit 行
func (r *Runner) Latest(ctx context.Context, limit int) (*Latest, error) {
	prefix := r.cfg.OutputPattern
	if i := strings.Index(prefix, datePlaceholder); i >= 0 {
		prefix = prefix[:i]
	}
	keys, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ext := path.Ext(r.cfg.OutputPattern)
	latest := ""
	for _, k := range keys {
		if strings.HasSuffix(k, ext) && k > latest {
			latest = k
		}
	}
	if latest == "" {
		return nil, ErrNoPredictions
	}

	data, err := r.store.Get(ctx, latest)
	if err != nil {
		return nil, err
	}
	rows, err := DecodeRows(data, r.cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", latest, err)
	}
	if limit < 0 {
		limit = 0
	}
	preview := rows[:min(limit, len(rows))]
	return &Latest{File: path.Base(latest), Rows: len(rows), Preview: preview}, nil
}
