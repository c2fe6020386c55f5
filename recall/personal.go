package recall

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

// DefaultMaxSeeds 参与种子向量计算的商品数上界（按权重取前 N）。
const DefaultMaxSeeds = 20

// Personal 是基于内容向量的个性化召回源。
//
// 流程：
//  1. 构建画像，得到交互商品及其衰减权重
//  2. 种子向量 = 交互商品向量的加权平均
//  3. 近邻检索 k = limit*3 + 已交互数，剔除已交互商品后保留 limit*3
//  4. 原始分 = 相似度 × (1 + 该类目在画像中的占比)
//
// 没有历史时返回空；目录不可用时返回 CatalogUnavailable。
type Personal struct {
	Profiles *ProfileBuilder
	Catalog  core.CatalogService
	MaxSeeds int
	Logger   zerolog.Logger
}

func (r *Personal) Name() string        { return core.SourcePersonal }
func (r *Personal) Kind() pipeline.Kind { return pipeline.KindRecall }

func (r *Personal) Process(ctx context.Context, rctx *core.RecommendContext, _ []*core.Item) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

func (r *Personal) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if rctx == nil || rctx.UserID == "" {
		return nil, nil
	}
	hist, err := r.Profiles.Build(ctx, rctx.UserID)
	if err != nil {
		return nil, err
	}
	if hist.Profile.Empty() {
		return nil, nil
	}

	seed, err := r.seedVector(ctx, hist.ProductWeights)
	if err != nil {
		return nil, err
	}
	if len(seed) == 0 {
		return nil, nil
	}

	n := fetchSize(rctx)
	neighbors, err := r.Catalog.NearestNeighbors(ctx, seed, n+len(hist.ProductWeights))
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(neighbors))
	categories := make(map[string]string, len(neighbors))
	for _, nb := range neighbors {
		if _, ok := hist.ProductWeights[nb.ProductID]; ok || rctx.HasInteracted(nb.ProductID) {
			continue
		}
		scores[nb.ProductID] = nb.Score * (1 + hist.Profile.CategoryShare(nb.Category))
		categories[nb.ProductID] = nb.Category
	}
	return scoredItems(core.SourcePersonal, scores, categories, n), nil
}

// SeedVector 计算商品集合的加权平均向量，供按种子推荐复用。
func (r *Personal) SeedVector(ctx context.Context, weights map[string]float64) ([]float64, error) {
	return r.seedVector(ctx, weights)
}

func (r *Personal) seedVector(ctx context.Context, weights map[string]float64) ([]float64, error) {
	ids := make([]string, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if weights[ids[i]] != weights[ids[j]] {
			return weights[ids[i]] > weights[ids[j]]
		}
		return ids[i] < ids[j]
	})
	maxSeeds := r.MaxSeeds
	if maxSeeds <= 0 {
		maxSeeds = DefaultMaxSeeds
	}
	if len(ids) > maxSeeds {
		ids = ids[:maxSeeds]
	}

	var (
		sum   []float64
		total float64
	)
	for _, id := range ids {
		p, err := r.Catalog.FetchProduct(ctx, id)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if len(p.Vector) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(p.Vector))
		}
		if len(p.Vector) != len(sum) {
			r.Logger.Warn().Str("product_id", id).Int("dim", len(p.Vector)).Msg("vector dimension mismatch, skipped")
			continue
		}
		w := weights[id]
		for i, v := range p.Vector {
			sum[i] += w * v
		}
		total += w
	}
	if total <= 0 {
		return nil, nil
	}
	for i := range sum {
		sum[i] /= total
	}
	return sum, nil
}
