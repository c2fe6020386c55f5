package filter

import (
	"context"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/dsl"
)

// RuleFilter 用 CEL 表达式决定是否保留候选：表达式为 true 时保留。
//
//	item.meta.rating >= 3.0
//	!("trending" in item.sources) || item.score > 0.1
//
// 表达式在构建时编译，语法错误直接返回。
type RuleFilter struct {
	Expr string
	prg  *dsl.Program
}

func NewRuleFilter(expr string) (*RuleFilter, error) {
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &RuleFilter{Expr: expr, prg: prg}, nil
}

func (f *RuleFilter) Name() string { return "filter.rule" }

func (f *RuleFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error) {
	keep, err := f.prg.Eval(item, rctx)
	if err != nil {
		return false, err
	}
	return !keep, nil
}
