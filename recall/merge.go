package recall

import (
	"github.com/rushteam/hybridrec/core"
)

// Merge 按商品 ID 去重合并多路候选：
//   - 各来源原始分累加到同一个 Item 的特征上
//   - recall_source 等 Label 按 MergeLabel 规则合并
//   - Meta 只补充缺失字段
//
// 输出顺序为首次出现的顺序；输入 Item 不会被修改。
func Merge(lists ...[]*core.Item) []*core.Item {
	seen := make(map[string]*core.Item)
	out := make([]*core.Item, 0)
	for _, list := range lists {
		for _, it := range list {
			if it == nil || it.ID == "" {
				continue
			}
			dst, ok := seen[it.ID]
			if !ok {
				dst = core.NewItem(it.ID)
				seen[it.ID] = dst
				out = append(out, dst)
			}
			for k, v := range it.Features {
				dst.Features[k] += v
			}
			for k, v := range it.Labels {
				dst.PutLabel(k, v)
			}
			for k, v := range it.Meta {
				dst.SetMetaIfEmpty(k, v)
			}
		}
	}
	return out
}
