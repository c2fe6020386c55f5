package core

import (
	"sort"

	"github.com/rushteam/hybridrec/pkg/utils"
)

// 召回来源（信号源）名称，同时用作 explain 的键。
const (
	SourcePersonal      = "personal"
	SourceCollaborative = "collaborative"
	SourceTrending      = "trending"
)

// LabelRecallSource 记录候选来自哪些信号源，多来源时按 MergeLabel 规则以 '|' 累积。
const LabelRecallSource = "recall_source"

// Meta 中约定的键。
const (
	MetaCategory = "category"
	MetaRating   = "rating"
	MetaName     = "name"
	MetaRank     = "rank"
)

// Item 是推荐链路中的统一承载结构：特征、分数、元信息、标签。
// Features 中以 FeatureScorePrefix+来源 保存各信号源的原始分；Score 为融合分。
type Item struct {
	ID       string
	Score    float64
	Features map[string]float64
	Meta     map[string]any
	Labels   map[string]utils.Label
}

// FeatureScorePrefix 是各信号源原始分的特征名前缀，例如 score_personal。
const FeatureScorePrefix = "score_"

func NewItem(id string) *Item {
	return &Item{
		ID:       id,
		Score:    0,
		Features: make(map[string]float64),
		Meta:     make(map[string]any),
		Labels:   make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// AddSourceScore 累加某个信号源的原始分，并打上来源标签（同一来源不重复打标）。
func (it *Item) AddSourceScore(source string, score float64) {
	if it.Features == nil {
		it.Features = make(map[string]float64)
	}
	key := FeatureScorePrefix + source
	_, seen := it.Features[key]
	it.Features[key] += score
	if !seen {
		it.PutLabel(LabelRecallSource, utils.Label{Value: source, Source: "recall"})
	}
}

// SourceScore 返回某个信号源的原始分。
func (it *Item) SourceScore(source string) float64 {
	if it.Features == nil {
		return 0
	}
	return it.Features[FeatureScorePrefix+source]
}

// SourceOrder 是信号源的规范顺序（personal, collaborative, trending）。
var SourceOrder = []string{SourcePersonal, SourceCollaborative, SourceTrending}

// SortSources 按规范顺序排序，未知来源按字母序排在最后。
func SortSources(sources []string) {
	rank := func(s string) int {
		for i, o := range SourceOrder {
			if o == s {
				return i
			}
		}
		return len(SourceOrder)
	}
	sort.SliceStable(sources, func(i, j int) bool {
		ri, rj := rank(sources[i]), rank(sources[j])
		if ri != rj {
			return ri < rj
		}
		return sources[i] < sources[j]
	})
}

// Sources 返回去重后的来源列表（规范顺序）。
func (it *Item) Sources() []string {
	lbl, ok := it.Labels[LabelRecallSource]
	if !ok {
		return nil
	}
	vals := utils.LabelValues(lbl)
	SortSources(vals)
	return vals
}

// Category 返回类目，优先 Meta 再 Label；没有则返回空串。
func (it *Item) Category() string {
	if it.Meta != nil {
		if s, ok := it.Meta[MetaCategory].(string); ok && s != "" {
			return s
		}
	}
	if lbl, ok := it.Labels[MetaCategory]; ok {
		return lbl.Value
	}
	return ""
}

// Rating 返回评分，缺失为 0。
func (it *Item) Rating() float64 {
	if it.Meta == nil {
		return 0
	}
	switch v := it.Meta[MetaRating].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Rank 返回最终名次（从 1 开始），未排名为 0。
func (it *Item) Rank() int {
	if it.Meta == nil {
		return 0
	}
	r, _ := it.Meta[MetaRank].(int)
	return r
}

// SetMetaIfEmpty 仅在 key 缺失或为空串时写入 Meta。
func (it *Item) SetMetaIfEmpty(key string, val any) {
	if it.Meta == nil {
		it.Meta = make(map[string]any)
	}
	if cur, ok := it.Meta[key]; ok {
		if s, isStr := cur.(string); !isStr || s != "" {
			return
		}
	}
	it.Meta[key] = val
}
