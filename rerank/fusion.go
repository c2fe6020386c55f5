// Package rerank 实现融合打分与重排：加权融合、商品信息补全、质量排序、类目多样性、Top-N。
package rerank

import (
	"context"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

// Weights 是各信号源的融合权重。
type Weights struct {
	Personal      float64 `koanf:"personal" yaml:"personal" json:"personal"`
	Collaborative float64 `koanf:"collaborative" yaml:"collaborative" json:"collaborative"`
	Trending      float64 `koanf:"trending" yaml:"trending" json:"trending"`
}

func DefaultWeights() Weights {
	return Weights{Personal: 0.5, Collaborative: 0.35, Trending: 0.15}
}

func (w Weights) of(source string) float64 {
	switch source {
	case core.SourcePersonal:
		return w.Personal
	case core.SourceCollaborative:
		return w.Collaborative
	case core.SourceTrending:
		return w.Trending
	default:
		return 0
	}
}

// Fusion 计算融合分：
//
//	combined = Σ weight(source) × raw(source) / max(raw(source))
//
// 各来源原始分量纲不同（相似度、加权次数），先在本次请求内按最大值归一化到 [0,1]。
// 没有某个来源的候选，该项为 0。
type Fusion struct {
	Weights Weights
}

func (n *Fusion) Name() string        { return "rerank.fusion" }
func (n *Fusion) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *Fusion) Process(_ context.Context, _ *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	maxRaw := make(map[string]float64, len(core.SourceOrder))
	for _, it := range items {
		for _, src := range core.SourceOrder {
			if s := it.SourceScore(src); s > maxRaw[src] {
				maxRaw[src] = s
			}
		}
	}
	for _, it := range items {
		var combined float64
		for _, src := range core.SourceOrder {
			if maxRaw[src] <= 0 {
				continue
			}
			combined += n.Weights.of(src) * it.SourceScore(src) / maxRaw[src]
		}
		it.Score = combined
	}
	return items, nil
}
