package filter

import (
	"context"

	"github.com/rushteam/hybridrec/core"
)

// InteractedFilter 过滤用户已交互过的商品（rctx.Interacted）。
type InteractedFilter struct{}

func (InteractedFilter) Name() string { return "filter.interacted" }

func (InteractedFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error) {
	return rctx.HasInteracted(item.ID), nil
}
