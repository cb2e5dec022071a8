package feast

import (
	"context"
	"fmt"
)

// RegionSource 从 Feast 在线存储批量读取 zipcode 对应的城市，
// 供 feature.LoadEncoderStore 在加载阶段物化区域映射。
type RegionSource struct {
	Client Client
	// Feature 城市特征引用，例如 "zipcode_regions:city_full"
	Feature string
	// EntityKey 实体列名，默认 "zipcode"
	EntityKey string
	// BatchSize 每次请求的实体行数，默认 500
	BatchSize int
}

// NewRegionSource 创建区域映射来源
func NewRegionSource(client Client, featureRef string) *RegionSource {
	return &RegionSource{Client: client, Feature: featureRef, EntityKey: "zipcode", BatchSize: 500}
}

// Regions 返回 zipcode -> 城市；在线存储中没有值的 zipcode 不出现在结果中
func (r *RegionSource) Regions(ctx context.Context, zipcodes []string) (map[string]string, error) {
	key := r.EntityKey
	if key == "" {
		key = "zipcode"
	}
	size := r.BatchSize
	if size <= 0 {
		size = 500
	}

	out := make(map[string]string, len(zipcodes))
	for start := 0; start < len(zipcodes); start += size {
		end := start + size
		if end > len(zipcodes) {
			end = len(zipcodes)
		}
		rows := make([]map[string]any, 0, end-start)
		for _, z := range zipcodes[start:end] {
			rows = append(rows, map[string]any{key: z})
		}
		resp, err := r.Client.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{
			Features:   []string{r.Feature},
			EntityRows: rows,
		})
		if err != nil {
			return nil, fmt.Errorf("regions [%d,%d): %w", start, end, err)
		}
		for i, fv := range resp.FeatureVectors {
			city, ok := fv.Values[r.Feature].(string)
			if !ok || city == "" || i >= end-start {
				continue
			}
			out[zipcodes[start+i]] = city
		}
	}
	return out, nil
}
