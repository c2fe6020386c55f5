// Package explain 根据候选的来源生成推荐理由。
package explain

import (
	"strings"

	"github.com/rushteam/hybridrec/core"
)

// Separator 连接多个来源的理由。
const Separator = " Also: "

var templates = map[string]string{
	core.SourcePersonal:      "Matches your browsing and purchase history.",
	core.SourceCollaborative: "Liked by users with similar taste.",
	core.SourceTrending:      "Popular right now.",
}

// Template 返回单个来源的理由；未知来源返回空串。
func Template(source string) string {
	return templates[source]
}

// Explain 按规范顺序（personal, collaborative, trending）拼接各来源的理由，纯函数。
func Explain(sources []string) string {
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		seen[s] = true
	}
	parts := make([]string, 0, len(seen))
	for _, s := range core.SourceOrder {
		if seen[s] {
			parts = append(parts, templates[s])
		}
	}
	return strings.Join(parts, Separator)
}

// Item 把排序后的候选转换成对外结果。
func Item(it *core.Item) core.RecommendationItem {
	sources := it.Sources()
	name, _ := it.Meta[core.MetaName].(string)
	return core.RecommendationItem{
		ProductID:     it.ID,
		Name:          name,
		Rank:          it.Rank(),
		CombinedScore: it.Score,
		Sources:       sources,
		Explanation:   Explain(sources),
		Category:      it.Category(),
		Rating:        it.Rating(),
		Breakdown:     core.BreakdownOf(it),
	}
}

// Items 批量转换，保持顺序。
func Items(items []*core.Item) []core.RecommendationItem {
	out := make([]core.RecommendationItem, 0, len(items))
	for _, it := range items {
		out = append(out, Item(it))
	}
	return out
}
