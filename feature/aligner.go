package feature

import (
	"fmt"
	"sort"
)

// Aligned 是对齐后的特征向量及对齐过程的记录
type Aligned struct {
	Vector []float64
	// Substituted 用默认值补齐的特征（按 schema 顺序）
	Substituted []string
	// Dropped schema 中不存在而被丢弃的特征（排序）
	Dropped []string
}

// Aligner 按 schema 把命名特征排成固定顺序、固定长度的向量。
// 这是全系统唯一依赖特征顺序的地方。
type Aligner struct {
	schema       *Schema
	scaler       FeatureScaler
	defaultValue float64
	defaults     map[string]float64
}

// AlignOptions 对齐选项
type AlignOptions struct {
	// DefaultFill 没有单独默认值的缺失特征使用的填充值
	DefaultFill float64 `yaml:"default_fill" envconfig:"DEFAULT_FILL"`
	// Defaults 按特征名覆盖填充值，优先级高于 schema 中的 defaults
	Defaults map[string]float64 `yaml:"defaults" ignored:"true"`
}

// NewAligner 创建对齐器；schema.Normalized 为 true 时使用 EncoderStore 中的标准化器
func NewAligner(encoders *EncoderStore, opts AlignOptions) *Aligner {
	schema := encoders.Schema()
	defaults := make(map[string]float64, len(schema.Defaults)+len(opts.Defaults))
	for k, v := range schema.Defaults {
		defaults[k] = v
	}
	for k, v := range opts.Defaults {
		defaults[k] = v
	}
	a := &Aligner{
		schema:       schema,
		defaultValue: opts.DefaultFill,
		defaults:     defaults,
	}
	if schema.Normalized {
		a.scaler = encoders.Scaler()
	}
	return a
}

// Width 返回向量长度，即 n_features_expected
func (a *Aligner) Width() int { return a.schema.FeatureCount }

// Align 按 schema 顺序构建向量：缺失特征填默认值并记录，多余特征丢弃并记录，
// 需要时在填充后做标准化。向量长度与 schema 不一致时返回错误。
func (a *Aligner) Align(features map[string]float64) (Aligned, error) {
	cols := a.schema.FeatureColumns
	out := Aligned{Vector: make([]float64, len(cols))}

	for i, col := range cols {
		if v, ok := features[col]; ok {
			out.Vector[i] = v
			continue
		}
		if v, ok := a.defaults[col]; ok {
			out.Vector[i] = v
		} else {
			out.Vector[i] = a.defaultValue
		}
		out.Substituted = append(out.Substituted, col)
	}

	if len(features)+len(out.Substituted) != len(cols) {
		idx := a.schema.Index()
		for name := range features {
			if _, ok := idx[name]; !ok {
				out.Dropped = append(out.Dropped, name)
			}
		}
		sort.Strings(out.Dropped)
	}

	if a.scaler != nil {
		a.scaler.NormalizeVector(cols, out.Vector)
		for i, v := range out.Vector {
			if !finite(v) {
				return Aligned{}, fmt.Errorf("feature %s is not finite after scaling", cols[i])
			}
		}
	}

	if len(out.Vector) != a.schema.FeatureCount {
		return Aligned{}, fmt.Errorf("aligned vector has %d features, expected %d", len(out.Vector), a.schema.FeatureCount)
	}
	return out, nil
}
