package filter

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
)

// BlacklistFilter 是黑名单过滤器，过滤掉下架/屏蔽的商品。
//
// 来源：
//   - ItemIDs：配置中的静态列表
//   - Store + Key：KV 中保存的 JSON 数组，运营可在线更新；读取失败时只用静态列表
type BlacklistFilter struct {
	ItemIDs []string

	Store core.Store
	Key   string

	ids map[string]struct{}
}

func NewBlacklistFilter(itemIDs []string, store core.Store, key string) *BlacklistFilter {
	ids := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		ids[id] = struct{}{}
	}
	return &BlacklistFilter{ItemIDs: itemIDs, Store: store, Key: key, ids: ids}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(ctx context.Context, _ *core.RecommendContext, item *core.Item) (bool, error) {
	if item == nil {
		return true, nil
	}
	if _, ok := f.ids[item.ID]; ok {
		return true, nil
	}
	if f.Store == nil || f.Key == "" {
		return false, nil
	}
	data, err := f.Store.Get(ctx, f.Key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return false, nil
		}
		return false, err
	}
	var blocked []string
	if err := json.Unmarshal(data, &blocked); err != nil {
		return false, err
	}
	for _, id := range blocked {
		if id == item.ID {
			return true, nil
		}
	}
	return false, nil
}
