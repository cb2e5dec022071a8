// Package dsl 基于 CEL (Common Expression Language) 的特征规则表达式。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：sqft_living <= 0.0 / bedrooms > 20.0
//   - 逻辑：bathrooms == 0.0 && bedrooms > 5.0
//   - 任意特征：features["sqft_lot"] > 1e6
//   - 存在性："sqft_lot" in features
//
// 声明过的变量直接按名字访问；未声明的特征通过 features map 访问。
package dsl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"
)

// FeaturesVar 是表达式中访问完整特征字典的变量名
const FeaturesVar = "features"

// Env 是编译规则用的 CEL 环境，线程安全，可复用
type Env struct {
	env   *cel.Env
	names []string
}

// NewEnv 创建 CEL 环境，variables 中的每个名字声明为 double 变量
func NewEnv(variables ...string) (*Env, error) {
	seen := make(map[string]struct{}, len(variables))
	opts := []cel.EnvOption{
		cel.Variable(FeaturesVar, cel.MapType(cel.StringType, cel.DoubleType)),
		cel.CrossTypeNumericComparisons(true),
	}
	names := make([]string, 0, len(variables))
	for _, v := range variables {
		v = strings.TrimSpace(v)
		if v == "" || v == FeaturesVar {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		names = append(names, v)
		opts = append(opts, cel.Variable(v, cel.DoubleType))
	}
	sort.Strings(names)

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	return &Env{env: env, names: names}, nil
}

// Variables 返回已声明的变量名（排序）
func (e *Env) Variables() []string { return e.names }

// Rule 是编译好的布尔表达式
type Rule struct {
	Expr  string
	prg   cel.Program
	names []string
}

// Compile 编译表达式，要求结果类型为 bool
func (e *Env) Compile(expr string) (*Rule, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("compile %q: expression must return bool, got %v", expr, ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &Rule{Expr: expr, prg: prg, names: e.names}, nil
}

// Eval 对一组特征求值。
// 表达式引用了不存在的特征时返回错误，由调用方决定如何处理。
func (r *Rule) Eval(features map[string]float64) (bool, error) {
	input := make(map[string]any, len(r.names)+1)
	input[FeaturesVar] = features
	for _, name := range r.names {
		if v, ok := features[name]; ok {
			input[name] = v
		}
	}

	out, _, err := r.prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", r.Expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: expression must return boolean, got %T", r.Expr, out.Value())
	}
	return result, nil
}
