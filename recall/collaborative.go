package recall

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

const (
	DefaultNeighborScan        = 200
	DefaultSimilarityThreshold = 0.3
)

// Collaborative 是基于用户的协同过滤召回源（User-CF）。
//
// 核心思想："兴趣相似的用户，喜欢相似的物品"
//
// 算法流程：
//  1. 目标用户 → 类目偏好向量（只用行为日志，不查目录）
//  2. 在最近活跃的 NeighborScan 个用户中计算余弦相似度
//  3. 相似度 >= Threshold 的用户为邻居
//  4. 邻居的强正反馈（收藏/加购/购买）中目标用户没碰过的商品，
//     分数 = Σ 相似度 × 行为权重 × 时间衰减
type Collaborative struct {
	Profiles     *ProfileBuilder
	NeighborScan int
	Threshold    float64
	Logger       zerolog.Logger
}

func (r *Collaborative) Name() string        { return core.SourceCollaborative }
func (r *Collaborative) Kind() pipeline.Kind { return pipeline.KindRecall }

func (r *Collaborative) Process(ctx context.Context, rctx *core.RecommendContext, _ []*core.Item) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

func (r *Collaborative) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if rctx == nil || rctx.UserID == "" {
		return nil, nil
	}
	builder := r.Profiles.StoreOnly()
	target, err := builder.Build(ctx, rctx.UserID)
	if err != nil {
		return nil, err
	}
	if target.Profile.Empty() || len(target.Profile.PreferredCategories) == 0 {
		return nil, nil
	}

	scan := r.NeighborScan
	if scan <= 0 {
		scan = DefaultNeighborScan
	}
	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	users, err := builder.Store.RecentUsers(ctx, scan)
	if err != nil {
		return nil, err
	}

	now := builder.now()
	scores := make(map[string]float64)
	categories := make(map[string]string)
	for _, u := range users {
		if u == rctx.UserID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nb, err := builder.Build(ctx, u)
		if err != nil {
			r.Logger.Debug().Err(err).Str("neighbor", u).Msg("skip neighbor")
			continue
		}
		sim := core.CosineSimilarity(target.Profile.PreferredCategories, nb.Profile.PreferredCategories)
		if sim < threshold {
			continue
		}
		for _, in := range nb.Interactions {
			if !in.Type.Positive() {
				continue
			}
			if _, ok := target.ProductWeights[in.ProductID]; ok || rctx.HasInteracted(in.ProductID) {
				continue
			}
			scores[in.ProductID] += sim * InteractionScore(in, now, builder.halfLife())
			if c := nb.Categories[in.ProductID]; c != "" {
				categories[in.ProductID] = c
			}
		}
	}
	return scoredItems(core.SourceCollaborative, scores, categories, fetchSize(rctx)), nil
}
