package feature

import (
	"fmt"
	"math"
)

// EncoderKind 是训练期拟合的类别编码方式
type EncoderKind string

const (
	// KindFrequency 频率编码：类别 -> 训练集中的出现频率
	KindFrequency EncoderKind = "frequency"
	// KindTarget 目标编码：类别 -> 训练集中该类别的目标均值
	KindTarget EncoderKind = "target"
)

// FittedEncoder 是训练期拟合好的类别编码器，加载后只读。
//
// encoders.json 中的一项：
//
//	{"name": "zipcode_freq", "kind": "frequency", "source": "zipcode",
//	 "mapping": {"98101": 0.031}, "fallback": 0}
//	{"name": "city_full_encoded", "kind": "target", "source": "city_full",
//	 "mapping": {"Seattle": 612000.5}, "global_mean": 540088.1}
type FittedEncoder struct {
	// Name 编码后输出的特征名（如 zipcode_freq）
	Name string `json:"name"`
	Kind EncoderKind `json:"kind"`
	// Source 被编码的原始字段名（如 zipcode）
	Source  string             `json:"source"`
	Mapping map[string]float64 `json:"mapping"`
	// Fallback 未见类别使用的值；频率编码未声明时为 0
	Fallback *float64 `json:"fallback,omitempty"`
	// GlobalMean 目标编码的全局均值，未声明 Fallback 时作为降级值
	GlobalMean *float64 `json:"global_mean,omitempty"`
}

// EncoderFile 是 encoders.json 的顶层结构
type EncoderFile struct {
	Version  string          `json:"version"`
	Encoders []FittedEncoder `json:"encoders"`
}

// Validate 检查编码器的结构字段是否完整
func (e *FittedEncoder) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("encoder without name")
	}
	if e.Source == "" {
		return fmt.Errorf("encoder %s: missing source", e.Name)
	}
	if e.Mapping == nil {
		return fmt.Errorf("encoder %s: missing mapping", e.Name)
	}
	switch e.Kind {
	case KindFrequency:
	case KindTarget:
		if e.Fallback == nil && e.GlobalMean == nil {
			return fmt.Errorf("encoder %s: target encoder needs fallback or global_mean", e.Name)
		}
	default:
		return fmt.Errorf("encoder %s: unknown kind %q", e.Name, e.Kind)
	}
	for k, v := range e.Mapping {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("encoder %s: non-finite value for %q", e.Name, k)
		}
	}
	if f := e.FallbackValue(); math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("encoder %s: non-finite fallback", e.Name)
	}
	return nil
}

// FallbackValue 返回未见类别的降级值
func (e *FittedEncoder) FallbackValue() float64 {
	if e.Fallback != nil {
		return *e.Fallback
	}
	if e.Kind == KindTarget && e.GlobalMean != nil {
		return *e.GlobalMean
	}
	return 0
}

// Lookup 返回类别对应的编码值；未见类别返回降级值且 fallback 为 true
func (e *FittedEncoder) Lookup(category string) (value float64, fallback bool) {
	if v, ok := e.Mapping[category]; ok {
		return v, false
	}
	return e.FallbackValue(), true
}

// Categories 返回已知类别（无序）
func (e *FittedEncoder) Categories() []string {
	out := make([]string, 0, len(e.Mapping))
	for k := range e.Mapping {
		out = append(out, k)
	}
	return out
}
