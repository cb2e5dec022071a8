package pipeline

import (
	"github.com/rushteam/homeprice/feature"
	"github.com/rushteam/homeprice/model"
)

// Options 是构建快照所需的全部配置：特征转换、对齐、异常值策略和打分参数。
// 同一份 Options 服务于 HTTP 与批处理两个入口，保证两条路径的转换完全一致。
type Options struct {
	// ExpectedFeatures > 0 时要求产物的特征数与之相等（n_features_expected）
	ExpectedFeatures int
	Transform        feature.TransformOptions
	Align            feature.AlignOptions
	Outliers         feature.OutlierConfig
	// BatchSize 每次调用模型的行数
	BatchSize int
	RPC       model.RPCOptions
	// ModelKey 模型文件名，默认 model.json
	ModelKey string
	// Regions 非空时在加载阶段从外部补充 zipcode -> 城市映射
	Regions feature.RegionSource
}

func (o Options) modelKey() string {
	if o.ModelKey == "" {
		return model.DefaultModelKey
	}
	return o.ModelKey
}
