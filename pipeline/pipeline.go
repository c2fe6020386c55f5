package pipeline

import (
	"context"
	"fmt"

	"github.com/rushteam/hybridrec/core"
)

// Pipeline 把排序逻辑拆成可组合的 Node 链：过滤 → 融合 → 补全 → 规则 → 质量 → 多样性 → 截断。
type Pipeline struct {
	Nodes []Node
}

// Run 依次执行各 Node；ctx 被取消时立即返回。
func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name(), err)
		}
		cur = next
	}
	return cur, nil
}

// Names 返回 Node 名称列表（调试/日志用）。
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		names = append(names, n.Name())
	}
	return names
}
