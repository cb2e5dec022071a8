package model

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/feature"
	"github.com/rushteam/homeprice/pkg/logging"
)

// DefaultModelKey 是模型产物的默认文件名
const DefaultModelKey = "model.json"

// 模型类型
const (
	TypeLinear = "linear"
	TypeGBDT   = "gbdt"
	TypeRPC    = "rpc"
)

// File 是 model.json 的结构。不同 type 使用不同字段：
//
//	{"type": "linear", "version": "v3", "target_transform": "log1p",
//	 "intercept": 12.1, "coefficients": {"sqft_living": 0.0003, ...}}
//	{"type": "gbdt", "version": "v3", "base_score": 0.5, "trees": [...]}
//	{"type": "rpc", "version": "v3", "endpoint": "http://xgb-serving:8501/predict"}
type File struct {
	Type            string             `json:"type"`
	Version         string             `json:"version"`
	TargetTransform TargetTransform    `json:"target_transform,omitempty"`
	Intercept       float64            `json:"intercept,omitempty"`
	Coefficients    map[string]float64 `json:"coefficients,omitempty"`
	BaseScore       float64            `json:"base_score,omitempty"`
	Trees           []*TreeNode        `json:"trees,omitempty"`
	Endpoint        string             `json:"endpoint,omitempty"`
}

// LoadOptions 模型加载选项
type LoadOptions struct {
	// RPC 远程模型参数；Endpoint 非空时覆盖 model.json 中的 endpoint
	RPC RPCOptions
}

// Load 从 Store 读取模型产物并按 schema 解析特征。
// key 不存在或无法反序列化返回 core.ErrArtifactMissing；
// 结构无效（未知类型、系数引用未知特征、版本与 schema 不一致等）返回 core.ErrArtifactCorrupt。
func Load(ctx context.Context, s core.Store, key string, schema *feature.Schema, opts LoadOptions) (*Model, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, core.ArtifactMissing(key, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, core.ArtifactMissing(key, fmt.Errorf("decode: %w", err))
	}
	m, err := Build(&f, schema, opts)
	if err != nil {
		return nil, core.ArtifactCorrupt(key, "%v", err)
	}
	logging.Info().Str("key", key).Str("type", m.Type).Str("version", m.Version).Msg("model loaded")
	return m, nil
}

// Build 用已解码的模型文件构建 Model
func Build(f *File, schema *feature.Schema, opts LoadOptions) (*Model, error) {
	if err := f.TargetTransform.validate(); err != nil {
		return nil, err
	}
	if f.Version != "" && schema.ModelVersion != "" && f.Version != schema.ModelVersion {
		return nil, fmt.Errorf("model version %q does not match schema version %q", f.Version, schema.ModelVersion)
	}
	cols := schema.FeatureColumns

	var (
		r   Regressor
		err error
	)
	switch f.Type {
	case TypeLinear:
		if f.Coefficients == nil {
			return nil, fmt.Errorf("linear model without coefficients")
		}
		r, err = NewLinearModel(f.Intercept, f.Coefficients, cols)
	case TypeGBDT:
		r, err = NewGBDTModel(f.BaseScore, f.Trees, cols)
	case TypeRPC:
		rpc := opts.RPC
		if rpc.Endpoint == "" {
			rpc.Endpoint = f.Endpoint
		}
		if rpc.Endpoint == "" {
			return nil, fmt.Errorf("rpc model without endpoint")
		}
		r = NewRPCModel(rpc, cols)
	case "":
		return nil, fmt.Errorf("model type not set")
	default:
		return nil, fmt.Errorf("unknown model type %q", f.Type)
	}
	if err != nil {
		return nil, err
	}

	version := f.Version
	if version == "" {
		version = schema.ModelVersion
	}
	return &Model{Regressor: r, Type: f.Type, Version: version, Transform: f.TargetTransform}, nil
}
