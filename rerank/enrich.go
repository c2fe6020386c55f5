package rerank

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

// Enrich 通过目录补全候选的类目、评分与名称。
//
// 补全是尽力而为：目录出错的候选保持原样（类目可能已由行为日志提供）；
// 一旦遇到 CatalogUnavailable，后续候选不再请求目录。
type Enrich struct {
	Catalog     core.CatalogService
	Concurrency int
	Logger      zerolog.Logger
}

func (n *Enrich) Name() string        { return "rerank.enrich" }
func (n *Enrich) Kind() pipeline.Kind { return pipeline.KindPostProcess }

func (n *Enrich) Process(ctx context.Context, _ *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	if n.Catalog == nil || len(items) == 0 {
		return items, nil
	}
	limit := n.Concurrency
	if limit <= 0 {
		limit = 8
	}

	var (
		eg   errgroup.Group
		down atomic.Bool
	)
	eg.SetLimit(limit)
	for _, it := range items {
		if _, ok := it.Meta[core.MetaRating]; ok && it.Category() != "" {
			continue
		}
		it := it
		eg.Go(func() error {
			if down.Load() || ctx.Err() != nil {
				return nil
			}
			p, err := n.Catalog.FetchProduct(ctx, it.ID)
			if err != nil {
				if core.IsCatalogUnavailable(err) && !down.Swap(true) {
					n.Logger.Warn().Err(err).Msg("catalog unavailable, enrichment skipped")
				}
				return nil
			}
			if p.Category != "" {
				it.SetMetaIfEmpty(core.MetaCategory, p.Category)
			}
			if p.Name != "" {
				it.SetMetaIfEmpty(core.MetaName, p.Name)
			}
			it.Meta[core.MetaRating] = p.Rating
			return nil
		})
	}
	_ = eg.Wait()
	return items, nil
}
