package rerank

import (
	"context"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

// TopNNode 是一个 Top-N 截断节点，截取前 N 个并写入名次（meta["rank"]，从 1 开始）。
// N <= 0 时使用 rctx.Limit；两者都没有则不截断。
type TopNNode struct {
	N int
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	limit := n.N
	if limit <= 0 && rctx != nil {
		limit = rctx.Limit
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	for i, it := range items {
		if it.Meta == nil {
			it.Meta = make(map[string]any)
		}
		it.Meta[core.MetaRank] = i + 1
	}
	return items, nil
}
