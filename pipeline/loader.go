package pipeline

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/feature"
	"github.com/rushteam/homeprice/model"
	"github.com/rushteam/homeprice/pkg/logging"
	"github.com/rushteam/homeprice/store"
)

// Loader 构建一个完整的快照。实现必须要么返回完整可用的快照，要么返回错误。
type Loader interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// LoaderFunc 把函数适配为 Loader
type LoaderFunc func(ctx context.Context) (*Snapshot, error)

func (f LoaderFunc) Load(ctx context.Context) (*Snapshot, error) { return f(ctx) }

// ArtifactLoader 从 Store 读取训练产物（schema、编码器、区域、标准化器、模型）并构建快照。
//
// 用法：
//
//	loader, err := pipeline.NewArtifactLoader(s, feature.ArtifactLocation{Prefix: "models"}, opts)
//	p := pipeline.New(loader)
//	err = p.Reload(ctx)
type ArtifactLoader struct {
	Store    core.Store
	Location feature.ArtifactLocation
	Options  Options
	outliers *feature.OutlierPolicy
}

// NewArtifactLoader 创建加载器；异常值规则在这里编译，配置错误尽早暴露。
func NewArtifactLoader(s core.Store, loc feature.ArtifactLocation, opts Options) (*ArtifactLoader, error) {
	if s == nil {
		return nil, fmt.Errorf("artifact store 未设置")
	}
	policy, err := feature.NewOutlierPolicy(opts.Outliers)
	if err != nil {
		return nil, fmt.Errorf("编译异常值策略失败: %w", err)
	}
	return &ArtifactLoader{
		Store:    s,
		Location: loc.WithDefaults(),
		Options:  opts,
		outliers: policy,
	}, nil
}

// Load 读取全部产物并构建快照
func (l *ArtifactLoader) Load(ctx context.Context) (*Snapshot, error) {
	es, err := feature.LoadEncoderStore(ctx, l.Store, l.Location, feature.LoadOptions{
		ExpectedFeatures: l.Options.ExpectedFeatures,
		Regions:          l.Options.Regions,
	})
	if err != nil {
		return nil, err
	}
	modelKey := l.Location.Key(l.Options.modelKey())
	m, err := model.Load(ctx, l.Store, modelKey, es.Schema(), model.LoadOptions{RPC: l.Options.RPC})
	if err != nil {
		return nil, err
	}
	snap, err := NewSnapshot(es, m, l.outliers, l.Options)
	if err != nil {
		return nil, core.ArtifactCorrupt(modelKey, "%v", err)
	}
	return snap, nil
}

// RemoteVersion 读取存储中当前 schema 的 model_version，不构建快照。
// Store 为 CachedStore 时绕过本地缓存直接读远端。
func (l *ArtifactLoader) RemoteVersion(ctx context.Context) (string, error) {
	s := l.Store
	if cached, ok := s.(*store.CachedStore); ok {
		s = cached.Remote
	}
	key := l.Location.Key(l.Location.SchemaKey)
	data, err := s.Get(ctx, key)
	if err != nil {
		return "", core.ArtifactMissing(key, err)
	}
	var schema feature.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return "", core.ArtifactMissing(key, fmt.Errorf("decode: %w", err))
	}
	return schema.ModelVersion, nil
}

// Invalidate 清除本地缓存中的全部产物，下一次 Load 会重新从远端下载。
// Store 不是 CachedStore 时什么也不做。
func (l *ArtifactLoader) Invalidate(ctx context.Context) error {
	cached, ok := l.Store.(*store.CachedStore)
	if !ok {
		return nil
	}
	loc := l.Location
	var errs []error
	for _, name := range []string{loc.SchemaKey, loc.EncodersKey, loc.RegionsKey, loc.ScalerKey, l.Options.modelKey()} {
		if err := cached.Invalidate(ctx, loc.Key(name)); err != nil && !core.IsStoreNotFound(err) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logging.Info().Str("prefix", loc.Prefix).Msg("artifact cache invalidated")
	return nil
}

var _ Loader = (*ArtifactLoader)(nil)
