package feature

import (
	"context"
	"fmt"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/pkg/logging"
	"github.com/rushteam/homeprice/store"
)

// 产物默认文件名
const (
	DefaultSchemaKey   = "feature_schema.json"
	DefaultEncodersKey = "encoders.json"
	DefaultRegionsKey  = "regions.json"
	DefaultScalerKey   = "scaler.json"
)

// ArtifactLocation 描述一组训练产物在 Store 中的位置。
// Prefix 之下按文件名查找；RegionsKey、ScalerKey 是可选产物。
type ArtifactLocation struct {
	Prefix      string `yaml:"prefix" envconfig:"PREFIX"`
	SchemaKey   string `yaml:"schema_key" envconfig:"SCHEMA_KEY"`
	EncodersKey string `yaml:"encoders_key" envconfig:"ENCODERS_KEY"`
	RegionsKey  string `yaml:"regions_key" envconfig:"REGIONS_KEY"`
	ScalerKey   string `yaml:"scaler_key" envconfig:"SCALER_KEY"`
}

// WithDefaults 返回补齐默认文件名后的位置
func (l ArtifactLocation) WithDefaults() ArtifactLocation {
	if l.SchemaKey == "" {
		l.SchemaKey = DefaultSchemaKey
	}
	if l.EncodersKey == "" {
		l.EncodersKey = DefaultEncodersKey
	}
	if l.RegionsKey == "" {
		l.RegionsKey = DefaultRegionsKey
	}
	if l.ScalerKey == "" {
		l.ScalerKey = DefaultScalerKey
	}
	return l
}

// Key 把文件名拼到 Prefix 之后
func (l ArtifactLocation) Key(name string) string {
	return store.JoinKey(l.Prefix, name)
}

// RegionSource 提供 zipcode -> 城市（city_full）的映射，
// 例如从在线特征库批量拉取。
type RegionSource interface {
	Regions(ctx context.Context, zipcodes []string) (map[string]string, error)
}

// LoadOptions 加载编码器时的校验与补充选项
type LoadOptions struct {
	// ExpectedFeatures > 0 时要求 schema 的特征数与之相等
	ExpectedFeatures int
	// Regions 非空时在加载阶段补充 zipcode -> 城市映射，失败只告警
	Regions RegionSource
}

// EncoderStore 持有一组训练期产物：特征 schema、类别编码器、区域映射和标准化器。
// 加载完成后只读，可被任意 goroutine 并发读取。
type EncoderStore struct {
	schema   *Schema
	version  string
	bySource map[string]*FittedEncoder
	byName   map[string]*FittedEncoder
	regions  map[string]string
	scaler   FeatureScaler
}

// LoadEncoderStore 从 Store 读取并校验训练产物。
//
//   - key 不存在、读取失败或内容无法反序列化：core.ErrArtifactMissing
//   - 能反序列化但缺少结构字段（映射、降级值、schema 长度等）：core.ErrArtifactCorrupt
func LoadEncoderStore(ctx context.Context, s core.Store, loc ArtifactLocation, opts LoadOptions) (*EncoderStore, error) {
	loc = loc.WithDefaults()

	schemaKey := loc.Key(loc.SchemaKey)
	var schema Schema
	if err := readArtifact(ctx, s, schemaKey, &schema); err != nil {
		return nil, err
	}
	if err := schema.Validate(opts.ExpectedFeatures); err != nil {
		return nil, core.ArtifactCorrupt(schemaKey, "%v", err)
	}

	encKey := loc.Key(loc.EncodersKey)
	var file EncoderFile
	if err := readArtifact(ctx, s, encKey, &file); err != nil {
		return nil, err
	}

	var regions map[string]string
	if _, err := readOptionalArtifact(ctx, s, loc.Key(loc.RegionsKey), &regions); err != nil {
		return nil, err
	}
	var scaler FeatureScaler
	scalerKey := loc.Key(loc.ScalerKey)
	found, err := readOptionalArtifact(ctx, s, scalerKey, &scaler)
	if err != nil {
		return nil, err
	}
	if !found && schema.Normalized {
		return nil, core.ArtifactMissing(scalerKey, fmt.Errorf("schema is normalized but no scaler"))
	}

	es, err := buildEncoderStore(&schema, &file, regions, scaler, encKey)
	if err != nil {
		return nil, err
	}

	if opts.Regions != nil {
		es.materializeRegions(ctx, opts.Regions)
	}

	logging.Info().
		Str("store", s.Name()).
		Str("prefix", loc.Prefix).
		Str("version", es.version).
		Int("features", schema.FeatureCount).
		Int("encoders", len(es.byName)).
		Int("regions", len(es.regions)).
		Bool("normalized", schema.Normalized).
		Msg("encoder store loaded")
	return es, nil
}

// NewEncoderStore 用内存中的产物构建 EncoderStore，校验规则与 LoadEncoderStore 相同
func NewEncoderStore(schema *Schema, file *EncoderFile, regions map[string]string, scaler FeatureScaler, expected int) (*EncoderStore, error) {
	if schema == nil {
		return nil, core.ArtifactCorrupt(DefaultSchemaKey, "nil schema")
	}
	if err := schema.Validate(expected); err != nil {
		return nil, core.ArtifactCorrupt(DefaultSchemaKey, "%v", err)
	}
	if file == nil {
		return nil, core.ArtifactCorrupt(DefaultEncodersKey, "nil encoder file")
	}
	return buildEncoderStore(schema, file, regions, scaler, DefaultEncodersKey)
}

func buildEncoderStore(schema *Schema, file *EncoderFile, regions map[string]string, scaler FeatureScaler, encKey string) (*EncoderStore, error) {
	if len(file.Encoders) == 0 {
		return nil, core.ArtifactCorrupt(encKey, "no encoders")
	}
	if file.Version != "" && schema.ModelVersion != "" && file.Version != schema.ModelVersion {
		return nil, core.ArtifactCorrupt(encKey, "encoders version %q does not match schema version %q", file.Version, schema.ModelVersion)
	}

	es := &EncoderStore{
		schema:   schema,
		version:  schema.ModelVersion,
		bySource: make(map[string]*FittedEncoder, len(file.Encoders)),
		byName:   make(map[string]*FittedEncoder, len(file.Encoders)),
		regions:  make(map[string]string, len(regions)),
		scaler:   scaler,
	}
	if es.version == "" {
		es.version = file.Version
	}
	for i := range file.Encoders {
		enc := file.Encoders[i]
		if err := enc.Validate(); err != nil {
			return nil, core.ArtifactCorrupt(encKey, "%v", err)
		}
		if _, dup := es.bySource[enc.Source]; dup {
			return nil, core.ArtifactCorrupt(encKey, "duplicate encoder for source %q", enc.Source)
		}
		if _, dup := es.byName[enc.Name]; dup {
			return nil, core.ArtifactCorrupt(encKey, "duplicate encoder name %q", enc.Name)
		}
		mapping := make(map[string]float64, len(enc.Mapping))
		for k, v := range enc.Mapping {
			mapping[k] = v
		}
		enc.Mapping = mapping
		es.bySource[enc.Source] = &enc
		es.byName[enc.Name] = &enc
	}
	for zip, city := range regions {
		if city != "" {
			es.regions[zip] = city
		}
	}
	return es, nil
}

// materializeRegions 为频率编码器已知的所有 zipcode 拉取城市映射并合并
func (es *EncoderStore) materializeRegions(ctx context.Context, src RegionSource) {
	enc, ok := es.bySource[core.FieldZipcode]
	if !ok {
		return
	}
	zips := enc.Categories()
	sort.Strings(zips)
	got, err := src.Regions(ctx, zips)
	if err != nil {
		logging.Warn().Err(err).Int("zipcodes", len(zips)).Msg("region materialization failed, using stored regions only")
		return
	}
	added := 0
	for zip, city := range got {
		if city == "" {
			continue
		}
		if _, exists := es.regions[zip]; !exists {
			added++
		}
		es.regions[zip] = city
	}
	logging.Info().Int("requested", len(zips)).Int("added", added).Msg("regions materialized")
}

func readArtifact(ctx context.Context, s core.Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return core.ArtifactMissing(key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return core.ArtifactMissing(key, fmt.Errorf("decode: %w", err))
	}
	return nil
}

// readOptionalArtifact 读取可选产物，key 不存在时返回 (false, nil)
func readOptionalArtifact(ctx context.Context, s core.Store, key string, v any) (bool, error) {
	data, err := s.Get(ctx, key)
	if core.IsStoreNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, core.ArtifactMissing(key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, core.ArtifactMissing(key, fmt.Errorf("decode: %w", err))
	}
	return true, nil
}

// Schema 返回特征 schema，调用方不得修改
func (es *EncoderStore) Schema() *Schema { return es.schema }

// Scaler 返回标准化器（可能为 nil）
func (es *EncoderStore) Scaler() FeatureScaler { return es.scaler }

// Version 返回产物版本
func (es *EncoderStore) Version() string { return es.version }

// Encoder 按原始字段名查找编码器
func (es *EncoderStore) Encoder(source string) (*FittedEncoder, bool) {
	enc, ok := es.bySource[source]
	return enc, ok
}

// Encoders 返回全部编码器（按输出特征名排序）
func (es *EncoderStore) Encoders() []*FittedEncoder {
	out := make([]*FittedEncoder, 0, len(es.byName))
	for _, enc := range es.byName {
		out = append(out, enc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Encode 返回类别的编码值，未见类别返回降级值，从不报错。
// feature 可以是原始字段名（zipcode）或输出特征名（zipcode_freq）；
// 未知的 feature 返回 0。
func (es *EncoderStore) Encode(feature, category string) float64 {
	v, _ := es.EncodeWithStatus(feature, category)
	return v
}

// EncodeWithStatus 同 Encode，额外返回是否使用了降级值
func (es *EncoderStore) EncodeWithStatus(feature, category string) (float64, bool) {
	enc, ok := es.bySource[feature]
	if !ok {
		enc, ok = es.byName[feature]
	}
	if !ok {
		return 0, true
	}
	return enc.Lookup(category)
}

// Region 按 zipcode 查找城市
func (es *EncoderStore) Region(zipcode string) (string, bool) {
	city, ok := es.regions[zipcode]
	return city, ok
}

// RegionCount 返回区域映射条数
func (es *EncoderStore) RegionCount() int { return len(es.regions) }
