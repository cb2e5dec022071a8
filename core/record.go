package core

import (
	"math"
	"strconv"
	"strings"
)

// 原始记录中的字段名（与训练数据的列名一致）。
const (
	FieldID         = "id"
	FieldBedrooms   = "bedrooms"
	FieldBathrooms  = "bathrooms"
	FieldSqftLiving = "sqft_living"
	FieldZipcode    = "zipcode"
	FieldDate       = "date"
	FieldPrice      = "price"
	FieldCity       = "city_full"
)

// ValueKind 标记 Value 中实际承载的类型。
type ValueKind uint8

const (
	KindMissing ValueKind = iota // 字段不存在
	KindNull                     // 字段存在但为 null / 空字符串
	KindString
	KindNumber
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "missing"
	}
}

// Value 是原始记录中一个松散类型的值（字符串、数字或 null）。
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
}

// Missing 返回表示“字段不存在”的值。
func Missing() Value { return Value{Kind: KindMissing} }

// Null 返回表示 null 的值。
func Null() Value { return Value{Kind: KindNull} }

// String 构造字符串值；全空白的字符串视为 null。
func String(s string) Value {
	if strings.TrimSpace(s) == "" {
		return Null()
	}
	return Value{Kind: KindString, Str: s}
}

// Number 构造数值。
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// ValueOf 把 JSON/YAML 解码得到的 any 转为 Value。
// 支持 string、各类整数/浮点数、bool（1/0）、nil；其他类型视为 null。
func ValueOf(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null()
	case string:
		return String(val)
	case float64:
		return Number(val)
	case float32:
		return Number(float64(val))
	case int:
		return Number(float64(val))
	case int64:
		return Number(float64(val))
	case int32:
		return Number(float64(val))
	case uint:
		return Number(float64(val))
	case uint64:
		return Number(float64(val))
	case bool:
		if val {
			return Number(1)
		}
		return Number(0)
	case interface{ Float64() (float64, error) }:
		// json.Number 以及兼容实现
		f, err := val.Float64()
		if err != nil {
			return Null()
		}
		return Number(f)
	default:
		return Null()
	}
}

// Present 返回值是否存在且非 null。
func (v Value) Present() bool {
	return v.Kind == KindString || v.Kind == KindNumber
}

// Float 把值强制转换为有限浮点数。字符串会按十进制解析。
func (v Value) Float() (float64, bool) {
	var f float64
	switch v.Kind {
	case KindNumber:
		f = v.Num
	case KindString:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Category 把值转换为类别字符串。整数值的数字按整数格式化（98101 而不是 98101.0）。
func (v Value) Category() (string, bool) {
	switch v.Kind {
	case KindString:
		return strings.TrimSpace(v.Str), true
	case KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return "", false
		}
		if v.Num == math.Trunc(v.Num) {
			return strconv.FormatInt(int64(v.Num), 10), true
		}
		return strconv.FormatFloat(v.Num, 'f', -1, 64), true
	default:
		return "", false
	}
}

// RawRecord 是一条房产原始记录。字段显式声明，缺失与 null 通过 Value.Kind 区分，
// 校验统一在 Transformer 边界进行。构造后不可修改。
type RawRecord struct {
	ID         string
	Bedrooms   Value
	Bathrooms  Value
	SqftLiving Value
	Zipcode    Value
	Date       Value
	Price      Value // 仅用于评估，永远不会作为特征
	City       Value
	// Extra 存放其他所有列（如 sqft_lot、floors），数值列会透传为特征。
	Extra map[string]Value
}

// NewRawRecord 从松散的 map（API 请求体中的一个元素）构建 RawRecord。
func NewRawRecord(m map[string]any) RawRecord {
	rec := RawRecord{
		Bedrooms:   Missing(),
		Bathrooms:  Missing(),
		SqftLiving: Missing(),
		Zipcode:    Missing(),
		Date:       Missing(),
		Price:      Missing(),
		City:       Missing(),
	}
	for k, raw := range m {
		rec.set(k, ValueOf(raw))
	}
	return rec
}

// NewRawRecordFromStrings 从 CSV 行（表头 -> 单元格）构建 RawRecord。
// 单元格保持字符串形式，由 Transformer 负责数值强制转换。
func NewRawRecordFromStrings(m map[string]string) RawRecord {
	rec := RawRecord{
		Bedrooms:   Missing(),
		Bathrooms:  Missing(),
		SqftLiving: Missing(),
		Zipcode:    Missing(),
		Date:       Missing(),
		Price:      Missing(),
		City:       Missing(),
	}
	for k, raw := range m {
		rec.set(k, String(raw))
	}
	return rec
}

func (r *RawRecord) set(key string, v Value) {
	name := strings.ToLower(strings.TrimSpace(key))
	switch name {
	case FieldID:
		if s, ok := v.Category(); ok {
			r.ID = s
		}
	case FieldBedrooms:
		r.Bedrooms = v
	case FieldBathrooms:
		r.Bathrooms = v
	case FieldSqftLiving:
		r.SqftLiving = v
	case FieldZipcode:
		r.Zipcode = v
	case FieldDate:
		r.Date = v
	case FieldPrice:
		r.Price = v
	case FieldCity:
		r.City = v
	default:
		if r.Extra == nil {
			r.Extra = make(map[string]Value)
		}
		r.Extra[name] = v
	}
}

// Actual 返回记录中的真实价格（若存在且为有效数值）。
func (r RawRecord) Actual() *float64 {
	if f, ok := r.Price.Float(); ok {
		return &f
	}
	return nil
}
