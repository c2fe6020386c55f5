// Package builders 注册内置 Node 的配置构建器。
package builders

import (
	"fmt"

	"github.com/rushteam/hybridrec/config"
	"github.com/rushteam/hybridrec/filter"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/conv"
	"github.com/rushteam/hybridrec/rerank"
)

func init() {
	config.Register("filter.interacted", BuildInteractedFilterNode)
	config.Register("filter.rule", BuildRuleFilterNode)
	config.Register("filter.blacklist", BuildBlacklistFilterNode)
	config.Register("rerank.fusion", BuildFusionNode)
	config.Register("rerank.enrich", BuildEnrichNode)
	config.Register("rerank.quality", BuildQualityNode)
	config.Register("rerank.diversity", BuildDiversityNode)
	config.Register("rerank.topn", BuildTopNNode)
}

func BuildInteractedFilterNode(env config.Env, _ map[string]any) (pipeline.Node, error) {
	return &filter.FilterNode{Filters: []filter.Filter{filter.InteractedFilter{}}, Logger: env.Logger}, nil
}

// BuildRuleFilterNode 配置：expr（CEL 表达式，为 true 时保留）。
func BuildRuleFilterNode(env config.Env, cfg map[string]any) (pipeline.Node, error) {
	expr := conv.ConfigGet(cfg, "expr", "")
	if expr == "" {
		return nil, fmt.Errorf("filter.rule: expr is required")
	}
	f, err := filter.NewRuleFilter(expr)
	if err != nil {
		return nil, fmt.Errorf("filter.rule: %w", err)
	}
	return &filter.FilterNode{Filters: []filter.Filter{f}, Logger: env.Logger}, nil
}

// BuildBlacklistFilterNode 配置：ids（静态列表）、key（Store 中的 JSON 数组）。
func BuildBlacklistFilterNode(env config.Env, cfg map[string]any) (pipeline.Node, error) {
	ids := conv.SliceAnyToString(cfg["ids"])
	key := conv.ConfigGet(cfg, "key", "")
	if key != "" && env.Store == nil {
		return nil, fmt.Errorf("filter.blacklist: key %q requires a store", key)
	}
	f := filter.NewBlacklistFilter(ids, env.Store, key)
	return &filter.FilterNode{Filters: []filter.Filter{f}, Logger: env.Logger}, nil
}

// BuildFusionNode 配置：personal / collaborative / trending 权重，可平铺或放在 weights 下，缺省使用默认权重。
func BuildFusionNode(_ config.Env, cfg map[string]any) (pipeline.Node, error) {
	raw := cfg
	if nested, ok := cfg["weights"].(map[string]any); ok {
		raw = nested
	}
	vals := conv.MapToFloat64(raw)
	w := rerank.DefaultWeights()
	if v, ok := vals["personal"]; ok {
		w.Personal = v
	}
	if v, ok := vals["collaborative"]; ok {
		w.Collaborative = v
	}
	if v, ok := vals["trending"]; ok {
		w.Trending = v
	}
	if w.Personal < 0 || w.Collaborative < 0 || w.Trending < 0 {
		return nil, fmt.Errorf("rerank.fusion: weights must be non-negative")
	}
	return &rerank.Fusion{Weights: w}, nil
}

func BuildEnrichNode(env config.Env, cfg map[string]any) (pipeline.Node, error) {
	return &rerank.Enrich{
		Catalog:     env.Catalog,
		Concurrency: conv.ConfigGetInt(cfg, "concurrency", 0),
		Logger:      env.Logger,
	}, nil
}

func BuildQualityNode(_ config.Env, cfg map[string]any) (pipeline.Node, error) {
	return &rerank.Quality{Epsilon: conv.ConfigGetFloat(cfg, "epsilon", 0)}, nil
}

func BuildDiversityNode(_ config.Env, cfg map[string]any) (pipeline.Node, error) {
	return &rerank.Diversity{
		Limit:   conv.ConfigGetInt(cfg, "limit", 0),
		Divisor: conv.ConfigGetInt(cfg, "divisor", 0),
	}, nil
}

func BuildTopNNode(_ config.Env, cfg map[string]any) (pipeline.Node, error) {
	return &rerank.TopNNode{N: conv.ConfigGetInt(cfg, "n", 0)}, nil
}
