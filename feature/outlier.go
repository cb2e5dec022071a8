package feature

import (
	"fmt"
	"math"
	"sort"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/pkg/dsl"
	"github.com/rushteam/homeprice/pkg/logging"
)

// Range 是数值特征的合法区间（闭区间），nil 表示不限制
type Range struct {
	Min *float64 `yaml:"min" json:"min,omitempty"`
	Max *float64 `yaml:"max" json:"max,omitempty"`
}

// OutlierConfig 异常值策略配置
//
//	outliers:
//	  enabled: true
//	  ranges:
//	    bedrooms: {min: 0, max: 20}
//	  rules:
//	    - "sqft_living <= 0.0"
//	  variables: [sqft_lot]
type OutlierConfig struct {
	Enabled bool             `yaml:"enabled" envconfig:"ENABLED"`
	Ranges  map[string]Range `yaml:"ranges" ignored:"true"`
	Rules   []string         `yaml:"rules" envconfig:"RULES"`
	// Variables 额外声明为 CEL 变量的特征名（核心特征总是已声明）
	Variables []string `yaml:"variables" envconfig:"VARIABLES"`
}

// 规则中总是可以直接按名字引用的特征
var builtinRuleVariables = []string{
	core.FieldBedrooms, core.FieldBathrooms, core.FieldSqftLiving,
	FeatureYear, FeatureMonth, FeatureDayOfWeek,
}

// OutlierPolicy 判定一行特征是否为异常值。编译后只读，可并发使用。
type OutlierPolicy struct {
	ranges []namedRange
	rules  []*dsl.Rule
}

type namedRange struct {
	feature string
	Range
}

// NewOutlierPolicy 编译异常值策略；未启用时返回 nil（nil 策略不拒绝任何行）
func NewOutlierPolicy(cfg OutlierConfig) (*OutlierPolicy, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	p := &OutlierPolicy{}

	names := make([]string, 0, len(cfg.Ranges))
	for name := range cfg.Ranges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := cfg.Ranges[name]
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return nil, fmt.Errorf("outlier range %s: min %v > max %v", name, *r.Min, *r.Max)
		}
		p.ranges = append(p.ranges, namedRange{feature: name, Range: r})
	}

	if len(cfg.Rules) > 0 {
		vars := append(append([]string{}, builtinRuleVariables...), cfg.Variables...)
		env, err := dsl.NewEnv(vars...)
		if err != nil {
			return nil, err
		}
		for _, expr := range cfg.Rules {
			rule, err := env.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("outlier rule: %w", err)
			}
			p.rules = append(p.rules, rule)
		}
	}
	return p, nil
}

// Check 返回命中的第一条规则对应的 *core.OutlierError，未命中返回 nil。
// 区间检查只作用于存在的特征；规则引用了缺失特征时视为未命中。
func (p *OutlierPolicy) Check(features map[string]float64) error {
	if p == nil {
		return nil
	}
	for _, r := range p.ranges {
		v, ok := features[r.feature]
		if !ok {
			continue
		}
		if r.Min != nil && v < *r.Min {
			return &core.OutlierError{Rule: fmt.Sprintf("%s < %v", r.feature, *r.Min)}
		}
		if r.Max != nil && v > *r.Max {
			return &core.OutlierError{Rule: fmt.Sprintf("%s > %v", r.feature, *r.Max)}
		}
	}
	for _, rule := range p.rules {
		hit, err := rule.Eval(features)
		if err != nil {
			logging.Debug().Err(err).Str("rule", rule.Expr).Msg("outlier rule not applicable")
			continue
		}
		if hit {
			return &core.OutlierError{Rule: rule.Expr}
		}
	}
	return nil
}

// Enabled 返回策略是否会拒绝行
func (p *OutlierPolicy) Enabled() bool {
	return p != nil && (len(p.ranges) > 0 || len(p.rules) > 0)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
