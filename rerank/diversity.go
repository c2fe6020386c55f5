package rerank

import (
	"context"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

// Diversity 是类目多样性 ReRank：在前 Limit 个结果里，每个类目最多 ceil(Limit/3) 个。
// 超出上限的候选不丢弃，按原顺序移到末尾；没有类目的候选不受限制。
// 类目来源优先级：meta["category"]，其次 label["category"]。
type Diversity struct {
	// Limit 为 0 时使用 rctx.Limit
	Limit int
	// Divisor 默认 3
	Divisor int
}

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

// CategoryCap 返回单个类目的上限。
func CategoryCap(limit, divisor int) int {
	if divisor <= 0 {
		divisor = 3
	}
	if limit <= 0 {
		return 0
	}
	return (limit + divisor - 1) / divisor
}

func (n *Diversity) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	limit := n.Limit
	if limit <= 0 && rctx != nil {
		limit = rctx.Limit
	}
	maxPerCate := CategoryCap(limit, n.Divisor)
	if maxPerCate <= 0 || len(items) == 0 {
		return items, nil
	}

	counts := make(map[string]int, 16)
	out := make([]*core.Item, 0, len(items))
	deferred := make([]*core.Item, 0)
	for _, it := range items {
		if it == nil {
			continue
		}
		cate := it.Category()
		if cate == "" {
			out = append(out, it)
			continue
		}
		if counts[cate] >= maxPerCate {
			deferred = append(deferred, it)
			continue
		}
		counts[cate]++
		out = append(out, it)
	}
	return append(out, deferred...), nil
}
