package feature

import (
	"fmt"
	"math"
)

// Schema 是训练期固化的特征 schema，对应 feature_schema.json。
// FeatureColumns 的顺序就是模型输入向量的顺序，Aligner 是唯一使用它排序的地方。
type Schema struct {
	// FeatureColumns 特征列名列表（按顺序）
	FeatureColumns []string `json:"feature_columns"`
	// FeatureCount 特征数量，即 n_features_expected
	FeatureCount int `json:"feature_count"`
	// LabelColumn 标签列名，永远不会出现在特征中
	LabelColumn string `json:"label_column"`
	// ModelVersion 产物版本，编码器与模型必须与之一致
	ModelVersion string `json:"model_version"`
	// Normalized 训练时是否做了 Z-score 标准化
	Normalized bool   `json:"normalized"`
	CreatedAt  string `json:"created_at"`
	// Defaults 缺失特征的填充值，未列出的特征使用全局默认值
	Defaults map[string]float64 `json:"defaults,omitempty"`
}

// Validate 检查 schema 结构；expected > 0 时要求特征数与之相等
func (s *Schema) Validate(expected int) error {
	if len(s.FeatureColumns) == 0 {
		return fmt.Errorf("feature_columns is empty")
	}
	if s.FeatureCount != len(s.FeatureColumns) {
		return fmt.Errorf("feature_count=%d but %d feature_columns", s.FeatureCount, len(s.FeatureColumns))
	}
	if expected > 0 && s.FeatureCount != expected {
		return fmt.Errorf("feature_count=%d, expected %d", s.FeatureCount, expected)
	}
	seen := make(map[string]struct{}, len(s.FeatureColumns))
	for _, col := range s.FeatureColumns {
		if col == "" {
			return fmt.Errorf("empty feature column name")
		}
		if s.LabelColumn != "" && col == s.LabelColumn {
			return fmt.Errorf("label column %q listed as a feature", col)
		}
		if _, dup := seen[col]; dup {
			return fmt.Errorf("duplicate feature column %q", col)
		}
		seen[col] = struct{}{}
	}
	for name, v := range s.Defaults {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("default for unknown feature %q", name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite default for %q", name)
		}
	}
	return nil
}

// Index 返回特征名到向量下标的映射
func (s *Schema) Index() map[string]int {
	idx := make(map[string]int, len(s.FeatureColumns))
	for i, col := range s.FeatureColumns {
		idx[col] = i
	}
	return idx
}

// GetMissingFeatures 返回 features 中缺失的特征列（按 schema 顺序）
func (s *Schema) GetMissingFeatures(features map[string]float64) []string {
	var missing []string
	for _, col := range s.FeatureColumns {
		if _, ok := features[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// FeatureScaler 特征标准化器，对应 scaler.json
// 每个特征对应一个 ScalerParams，包含 mean 和 std
type FeatureScaler map[string]ScalerParams

// ScalerParams 标准化参数
type ScalerParams struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// NormalizeValue 对单个特征值进行标准化（Z-score）
//
// 公式：normalized = (x - mean) / std
//
// 如果特征不在 scaler 中，或 std <= 0，则返回原值。
func (s FeatureScaler) NormalizeValue(featureName string, value float64) float64 {
	if params, ok := s[featureName]; ok {
		if params.Std > 0 {
			return (value - params.Mean) / params.Std
		}
	}
	return value
}

// NormalizeVector 按 columns 顺序原地标准化向量
func (s FeatureScaler) NormalizeVector(columns []string, vector []float64) {
	for i, col := range columns {
		vector[i] = s.NormalizeValue(col, vector[i])
	}
}
