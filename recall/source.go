// Package recall 实现三路信号源（个性化、协同过滤、热门）以及并发扇出。
package recall

import (
	"context"
	"sort"

	"github.com/rushteam/hybridrec/core"
)

// Source 表示一个可复用的召回源（个性化/协同/热门）。
// 你可以把它理解为“可并发 fan-out 的策略单元”。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}

// DefaultLimit 是 rctx.Limit 缺省时的结果数。
const DefaultLimit = 10

// OverFetch 召回按 limit 的倍数超量获取，给过滤和多样性留余量。
const OverFetch = 3

func fetchSize(rctx *core.RecommendContext) int {
	limit := DefaultLimit
	if rctx != nil && rctx.Limit > 0 {
		limit = rctx.Limit
	}
	return limit * OverFetch
}

// sortByScore 分数降序，同分按 ID 升序，保证输出确定。
func sortByScore(items []*core.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
}

// scoredItems 把 productID->score 转成 Item 列表（已排序、截断），并写入来源分与类目。
func scoredItems(source string, scores map[string]float64, categories map[string]string, n int) []*core.Item {
	out := make([]*core.Item, 0, len(scores))
	for id, s := range scores {
		if s <= 0 {
			continue
		}
		it := core.NewItem(id)
		it.Score = s
		it.AddSourceScore(source, s)
		if c := categories[id]; c != "" {
			it.Meta[core.MetaCategory] = c
		}
		out = append(out, it)
	}
	sortByScore(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
