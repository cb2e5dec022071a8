// Package pipelinetest 提供一组完整、自洽的训练产物，供测试和本地演示使用。
package pipelinetest

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/feature"
	"github.com/rushteam/homeprice/model"
	"github.com/rushteam/homeprice/store"
)

// Columns 是 25 个训练特征，顺序即模型输入顺序
var Columns = []string{
	"bedrooms", "bathrooms", "sqft_living", "sqft_lot", "floors",
	"waterfront", "view", "condition", "grade", "sqft_above",
	"sqft_basement", "yr_built", "yr_renovated", "lat", "long",
	"sqft_living15", "sqft_lot15", "year", "month", "day_of_week",
	"zipcode_freq", "city_full_encoded", "median_list_price", "median_dom", "inventory",
}

// 线性模型参数
const (
	Intercept = 10000.0
)

// Coefficients 只对少数特征非零，预测值容易手算
var Coefficients = map[string]float64{
	"bedrooms":          1000,
	"sqft_living":       200,
	"grade":             5000,
	"zipcode_freq":      10000,
	"city_full_encoded": 0.5,
}

// ExpectedPrediction 是 RecordMap 默认记录的预测值：
// 10000 + 3*1000 + 1800*200 + 7*5000 + 0.25*10000 + 600000*0.5
const ExpectedPrediction = 710500.0

// GlobalMean 是 city_full 目标编码的全局均值
const GlobalMean = 540000.0

// Schema 返回指定版本的 25 特征 schema
func Schema(version string) *feature.Schema {
	cols := append([]string(nil), Columns...)
	return &feature.Schema{
		FeatureColumns: cols,
		FeatureCount:   len(cols),
		LabelColumn:    core.FieldPrice,
		ModelVersion:   version,
		CreatedAt:      "2024-01-01T00:00:00Z",
	}
}

// Encoders 返回 zipcode 频率编码和 city_full 目标编码
func Encoders(version string) *feature.EncoderFile {
	mean := GlobalMean
	return &feature.EncoderFile{
		Version: version,
		Encoders: []feature.FittedEncoder{
			{
				Name:    "zipcode_freq",
				Kind:    feature.KindFrequency,
				Source:  core.FieldZipcode,
				Mapping: map[string]float64{"98101": 0.25, "98004": 0.5, "98052": 0.25},
			},
			{
				Name:       "city_full_encoded",
				Kind:       feature.KindTarget,
				Source:     core.FieldCity,
				Mapping:    map[string]float64{"Seattle": 600000, "Bellevue": 900000, "Redmond": 800000},
				GlobalMean: &mean,
			},
		},
	}
}

// Regions 返回 zipcode -> 城市映射
func Regions() map[string]string {
	return map[string]string{"98101": "Seattle", "98004": "Bellevue", "98052": "Redmond"}
}

// Model 返回线性模型文件
func Model(version string) *model.File {
	coef := make(map[string]float64, len(Coefficients))
	for k, v := range Coefficients {
		coef[k] = v
	}
	return &model.File{
		Type:         model.TypeLinear,
		Version:      version,
		Intercept:    Intercept,
		Coefficients: coef,
	}
}

// WriteArtifacts 把整套产物写入 s 的 prefix 之下
func WriteArtifacts(ctx context.Context, s core.Store, prefix, version string) error {
	files := map[string]any{
		feature.DefaultSchemaKey:   Schema(version),
		feature.DefaultEncodersKey: Encoders(version),
		feature.DefaultRegionsKey:  Regions(),
		model.DefaultModelKey:      Model(version),
	}
	for name, v := range files {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if err := s.Set(ctx, store.JoinKey(prefix, name), data); err != nil {
			return err
		}
	}
	return nil
}

// RecordMap 返回一条包含全部原始列的有效记录（与 API 请求体中的一个元素同形）
func RecordMap(id string) map[string]any {
	return map[string]any{
		"id":                id,
		"date":              "2014-05-02",
		"price":             700000.0,
		"bedrooms":          3.0,
		"bathrooms":         2.0,
		"sqft_living":       1800.0,
		"sqft_lot":          5000.0,
		"floors":            1.0,
		"waterfront":        0.0,
		"view":              0.0,
		"condition":         3.0,
		"grade":             7.0,
		"sqft_above":        1800.0,
		"sqft_basement":     0.0,
		"yr_built":          1990.0,
		"yr_renovated":      0.0,
		"zipcode":           "98101",
		"lat":               47.61,
		"long":              -122.33,
		"sqft_living15":     1700.0,
		"sqft_lot15":        5000.0,
		"city_full":         "Seattle",
		"median_list_price": 650000.0,
		"median_dom":        20.0,
		"inventory":         300.0,
	}
}

// Record 返回 RecordMap 的 RawRecord，edit 可以修改或删除字段
func Record(id string, edit func(m map[string]any)) core.RawRecord {
	m := RecordMap(id)
	if edit != nil {
		edit(m)
	}
	return core.NewRawRecord(m)
}
