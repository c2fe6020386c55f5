// Package dsl 是基于 CEL (Common Expression Language) 的规则表达式。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/hybridrec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("rctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译后的表达式，线程安全，可并发 Eval。
//
// 可用变量：
//   - item.id / item.score / item.features / item.meta / item.sources
//   - label.<key>：Label 的值，例如 label.recall_source
//   - rctx.user_id / rctx.limit / rctx.params
//
// 表达式必须返回 bool。访问不存在的 map key 会报错，可用 has(item.meta.rating) 判断。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式。空表达式恒为 true。
func Compile(expr string) (*Program, error) {
	p := &Program{expr: expr}
	if expr == "" {
		return p, nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	p.prg = prg
	return p, nil
}

func (p *Program) String() string { return p.expr }

// Eval 对单个候选求值。
func (p *Program) Eval(item *core.Item, rctx *core.RecommendContext) (bool, error) {
	if p == nil || p.prg == nil {
		return true, nil
	}
	out, _, err := p.prg.Eval(buildInput(item, rctx))
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// Evaluate 编译并求值，适合一次性调用。
func Evaluate(expr string, item *core.Item, rctx *core.RecommendContext) (bool, error) {
	p, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return p.Eval(item, rctx)
}

func buildInput(item *core.Item, rctx *core.RecommendContext) map[string]any {
	labels := make(map[string]any, len(item.Labels))
	for k, v := range item.Labels {
		labels[k] = v.Value
	}
	meta := item.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	features := item.Features
	if features == nil {
		features = map[string]float64{}
	}
	sources := item.Sources()
	if sources == nil {
		sources = []string{}
	}

	ctxVars := map[string]any{
		"user_id": "",
		"limit":   0,
		"params":  map[string]any{},
	}
	if rctx != nil {
		ctxVars["user_id"] = rctx.UserID
		ctxVars["limit"] = rctx.Limit
		if rctx.Params != nil {
			ctxVars["params"] = rctx.Params
		}
	}

	return map[string]any{
		"item": map[string]any{
			"id":       item.ID,
			"score":    item.Score,
			"features": features,
			"meta":     meta,
			"sources":  sources,
		},
		"label": labels,
		"rctx":  ctxVars,
	}
}
