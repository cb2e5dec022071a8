package core

// PredictionResult 把输入身份（下标 / ID）与预测值配对；
// 当输入带有真实价格时一并返回，便于并排评估。
type PredictionResult struct {
	Index     int      `json:"index"`
	ID        string   `json:"id,omitempty"`
	Predicted float64  `json:"predicted_price"`
	Actual    *float64 `json:"actual_price,omitempty"`
	// Substituted 是对齐阶段用默认值补齐的特征名。
	Substituted []string `json:"substituted,omitempty"`
	// Fallbacks 是转换阶段触发的降级（如 date_sentinel、zipcode_unseen）。
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// SkippedRecord 描述一条被跳过的记录及原因，逐条列出而不是只给计数。
type SkippedRecord struct {
	Index  int      `json:"index"`
	ID     string   `json:"id,omitempty"`
	Kind   SkipKind `json:"kind"`
	Field  string   `json:"field,omitempty"`
	Reason string   `json:"reason"`
}

// Prediction 是一次 Predict 调用的输出。
// Results 与输入顺序一致（跳过的记录不留空洞），Skipped 单独列出。
type Prediction struct {
	Results []PredictionResult `json:"results"`
	Skipped []SkippedRecord    `json:"skipped"`
}

// Predictions 返回纯预测值切片（与 Results 顺序一致）。
func (p *Prediction) Predictions() []float64 {
	out := make([]float64, len(p.Results))
	for i, r := range p.Results {
		out[i] = r.Predicted
	}
	return out
}

// CountSkipped 统计某一类跳过记录的数量。
func (p *Prediction) CountSkipped(kind SkipKind) int {
	n := 0
	for _, s := range p.Skipped {
		if s.Kind == kind {
			n++
		}
	}
	return n
}
