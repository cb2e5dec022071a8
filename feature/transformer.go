package feature

import (
	"strings"
	"time"

	"github.com/rushteam/homeprice/core"
)

// 日期派生特征名
const (
	FeatureYear      = "year"
	FeatureMonth     = "month"
	FeatureDayOfWeek = "day_of_week"
)

// 转换阶段记录的降级标记
const (
	FallbackDateSentinel    = "date_sentinel"
	FallbackRegionUnresolve = "region_unresolved"
)

// DefaultDateLayouts 依次尝试的日期格式
var DefaultDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"20060102T150405",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// TransformOptions 特征转换选项
type TransformOptions struct {
	// DateSentinel 日期缺失或无法解析时 year/month/day_of_week 的取值
	DateSentinel float64 `yaml:"date_sentinel" envconfig:"DATE_SENTINEL"`
	// DateLayouts 为空时使用 DefaultDateLayouts
	DateLayouts []string `yaml:"date_layouts" envconfig:"DATE_LAYOUTS"`
	// DropColumns 永远不作为特征的列（price 总是被排除）
	DropColumns []string `yaml:"drop_columns" envconfig:"DROP_COLUMNS"`
}

// Row 是一条记录转换后的命名特征
type Row struct {
	Features map[string]float64
	// Fallbacks 转换中触发的降级（记录仍然有效）
	Fallbacks []string
}

// Transformer 把 RawRecord 转换为命名特征，是训练与推理共用的唯一转换实现。
// 只读取 EncoderStore，不持有可变状态，可并发使用。
type Transformer struct {
	encoders *EncoderStore
	outliers *OutlierPolicy
	layouts  []string
	sentinel float64
	drop     map[string]struct{}
	// 由通用编码处理的 Extra 列
	extraEncoders []*FittedEncoder
}

// NewTransformer 创建转换器；outliers 为 nil 时不做异常值检查
func NewTransformer(encoders *EncoderStore, opts TransformOptions, outliers *OutlierPolicy) *Transformer {
	layouts := opts.DateLayouts
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	drop := map[string]struct{}{
		core.FieldPrice: {},
		core.FieldID:    {},
	}
	for _, c := range opts.DropColumns {
		drop[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}

	t := &Transformer{
		encoders: encoders,
		outliers: outliers,
		layouts:  layouts,
		sentinel: opts.DateSentinel,
		drop:     drop,
	}
	for _, enc := range encoders.Encoders() {
		if enc.Source == core.FieldZipcode || enc.Source == core.FieldCity {
			continue
		}
		t.extraEncoders = append(t.extraEncoders, enc)
	}
	return t
}

// Transform 按固定顺序转换一条记录：
//  1. date -> year/month/day_of_week，失败时取哨兵值（记录仍有效）
//  2. bedrooms/bathrooms/sqft_living 强制转为数值，失败返回 *core.InvalidRecordError
//  3. zipcode 频率编码，区域（city_full）目标编码
//  4. 其余数值列透传
//  5. 异常值策略，命中返回 *core.OutlierError
func (t *Transformer) Transform(rec core.RawRecord) (*Row, error) {
	row := &Row{Features: make(map[string]float64, 16)}

	t.dateFeatures(rec.Date, row)

	for _, f := range []struct {
		name string
		v    core.Value
	}{
		{core.FieldBedrooms, rec.Bedrooms},
		{core.FieldBathrooms, rec.Bathrooms},
		{core.FieldSqftLiving, rec.SqftLiving},
	} {
		num, err := requireNumber(f.name, f.v)
		if err != nil {
			return nil, err
		}
		row.Features[f.name] = num
	}

	zip, ok := rec.Zipcode.Category()
	if !ok {
		return nil, invalid(core.FieldZipcode, rec.Zipcode)
	}
	t.encodeLocation(zip, rec.City, row)

	for _, enc := range t.extraEncoders {
		cat, ok := rec.Extra[enc.Source].Category()
		v, fallback := enc.FallbackValue(), true
		if ok {
			v, fallback = enc.Lookup(cat)
		}
		row.Features[enc.Name] = v
		if fallback {
			row.Fallbacks = append(row.Fallbacks, enc.Source+"_unseen")
		}
	}

	for name, v := range rec.Extra {
		if _, skip := t.drop[name]; skip {
			continue
		}
		if _, encoded := t.encoders.Encoder(name); encoded {
			continue
		}
		if _, exists := row.Features[name]; exists {
			continue
		}
		if num, ok := v.Float(); ok {
			row.Features[name] = num
		}
	}

	if err := t.outliers.Check(row.Features); err != nil {
		return nil, err
	}
	return row, nil
}

func (t *Transformer) dateFeatures(v core.Value, row *Row) {
	if v.Kind == core.KindString {
		s := strings.TrimSpace(v.Str)
		for _, layout := range t.layouts {
			if d, err := time.Parse(layout, s); err == nil {
				row.Features[FeatureYear] = float64(d.Year())
				row.Features[FeatureMonth] = float64(d.Month())
				row.Features[FeatureDayOfWeek] = float64(d.Weekday())
				return
			}
		}
	}
	row.Features[FeatureYear] = t.sentinel
	row.Features[FeatureMonth] = t.sentinel
	row.Features[FeatureDayOfWeek] = t.sentinel
	row.Fallbacks = append(row.Fallbacks, FallbackDateSentinel)
}

// encodeLocation 对 zipcode 做频率编码，对区域做目标编码。
// 区域优先取记录自带的 city_full，否则查 zipcode -> 城市映射。
func (t *Transformer) encodeLocation(zip string, city core.Value, row *Row) {
	if enc, ok := t.encoders.Encoder(core.FieldZipcode); ok {
		v, fallback := enc.Lookup(zip)
		row.Features[enc.Name] = v
		if fallback {
			row.Fallbacks = append(row.Fallbacks, core.FieldZipcode+"_unseen")
		}
	}

	enc, ok := t.encoders.Encoder(core.FieldCity)
	if !ok {
		return
	}
	region, ok := city.Category()
	if !ok {
		region, ok = t.encoders.Region(zip)
	}
	if !ok {
		row.Features[enc.Name] = enc.FallbackValue()
		row.Fallbacks = append(row.Fallbacks, FallbackRegionUnresolve)
		return
	}
	v, fallback := enc.Lookup(region)
	row.Features[enc.Name] = v
	if fallback {
		row.Fallbacks = append(row.Fallbacks, core.FieldCity+"_unseen")
	}
}

func requireNumber(field string, v core.Value) (float64, error) {
	if f, ok := v.Float(); ok {
		return f, nil
	}
	return 0, invalid(field, v)
}

func invalid(field string, v core.Value) error {
	reason := "missing"
	switch v.Kind {
	case core.KindNull:
		reason = "null"
	case core.KindString:
		reason = "not a number: " + quoteShort(v.Str)
	case core.KindNumber:
		reason = "not a finite number"
	}
	if field == core.FieldZipcode && v.Kind == core.KindNumber {
		reason = "not a valid zipcode"
	}
	return &core.InvalidRecordError{Field: field, Reason: reason}
}

func quoteShort(s string) string {
	if len(s) > 32 {
		s = s[:32] + "..."
	}
	return `"` + s + `"`
}
