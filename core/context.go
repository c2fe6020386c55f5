package core

import "github.com/rushteam/hybridrec/pkg/utils"

// RecommendContext 承载用户/请求信息，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	UserID string

	// Limit 是本次请求需要的结果数，召回按 Limit*OverFetch 超量获取
	Limit int

	// User 是本次请求构建的用户画像（可为空）
	User *UserProfile

	// Interacted 是用户已交互过的商品集合，用于排除
	Interacted map[string]struct{}

	// Labels 是用户级标签，可驱动整个 Pipeline 行为
	Labels map[string]utils.Label

	// Params 请求级上下文参数
	Params map[string]any
}

// HasInteracted 判断用户是否已交互过该商品。
func (rctx *RecommendContext) HasInteracted(productID string) bool {
	if rctx == nil || rctx.Interacted == nil {
		return false
	}
	_, ok := rctx.Interacted[productID]
	return ok
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取用户级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
