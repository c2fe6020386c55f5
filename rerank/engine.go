package rerank

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/filter"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/recall"
)

// EngineConfig 是默认排序链路的参数。
type EngineConfig struct {
	Weights Weights
	Epsilon float64

	// Catalog 可选；为空时不补全类目与评分
	Catalog     core.CatalogService
	Concurrency int

	// Filters 追加在补全之后的过滤器（CEL 规则、黑名单）
	Filters []filter.Filter

	Logger zerolog.Logger
}

// Engine 融合三路候选并输出最终排序。
type Engine struct {
	Pipeline *pipeline.Pipeline
}

// NewEngine 构建默认链路：
//
//	已交互过滤 → 加权融合 → 目录补全 → 规则过滤 → 质量排序 → 类目多样性 → Top-N
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	nodes := []pipeline.Node{
		&filter.FilterNode{Filters: []filter.Filter{filter.InteractedFilter{}}, Logger: cfg.Logger},
		&Fusion{Weights: cfg.Weights},
		&Enrich{Catalog: cfg.Catalog, Concurrency: cfg.Concurrency, Logger: cfg.Logger},
	}
	if len(cfg.Filters) > 0 {
		nodes = append(nodes, &filter.FilterNode{Filters: cfg.Filters, Logger: cfg.Logger})
	}
	nodes = append(nodes,
		&Quality{Epsilon: cfg.Epsilon},
		&Diversity{},
		&TopNNode{},
	)
	return &Engine{Pipeline: &pipeline.Pipeline{Nodes: nodes}}
}

// NewEngineWithPipeline 使用外部（例如 YAML 配置）构建的链路。
func NewEngineWithPipeline(p *pipeline.Pipeline) *Engine {
	return &Engine{Pipeline: p}
}

// Rank 合并三路候选并排序，返回最多 limit 个带名次的候选。
func (e *Engine) Rank(
	ctx context.Context,
	rctx *core.RecommendContext,
	personal, collaborative, trending []*core.Item,
	limit int,
) ([]*core.Item, error) {
	if rctx == nil {
		rctx = &core.RecommendContext{}
	}
	if limit > 0 {
		rctx.Limit = limit
	}
	merged := recall.Merge(personal, collaborative, trending)
	if len(merged) == 0 {
		return merged, nil
	}
	return e.Pipeline.Run(ctx, rctx, merged)
}
