package rerank

import (
	"context"
	"sort"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

const DefaultEpsilon = 0.01

// Quality 按融合分降序排序；分差在 Epsilon 以内（相对分组首项）的候选，
// 评分高的优先，再按商品 ID 升序。保证同样输入得到同样顺序。
type Quality struct {
	Epsilon float64
}

func (n *Quality) Name() string        { return "rerank.quality" }
func (n *Quality) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *Quality) Process(_ context.Context, _ *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	eps := n.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})

	for start := 0; start < len(items); {
		end := start + 1
		for end < len(items) && items[start].Score-items[end].Score <= eps {
			end++
		}
		group := items[start:end]
		sort.SliceStable(group, func(i, j int) bool {
			ri, rj := group[i].Rating(), group[j].Rating()
			if ri != rj {
				return ri > rj
			}
			return group[i].ID < group[j].ID
		})
		start = end
	}
	return items, nil
}
