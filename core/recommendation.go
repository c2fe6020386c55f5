package core

// ScoreBreakdown 是单个候选在各信号源上的原始分。
type ScoreBreakdown struct {
	Personal      float64 `json:"personal"`
	Collaborative float64 `json:"collaborative"`
	Trending      float64 `json:"trending"`
}

// CandidateSet 只在一次推荐请求内存在，请求结束即丢弃。
type CandidateSet map[string]*ScoreBreakdown

// BreakdownOf 从 Item 的特征中取出各来源原始分。
func BreakdownOf(it *Item) ScoreBreakdown {
	return ScoreBreakdown{
		Personal:      it.SourceScore(SourcePersonal),
		Collaborative: it.SourceScore(SourceCollaborative),
		Trending:      it.SourceScore(SourceTrending),
	}
}

// RecommendationItem 是对外返回的最终结果单元。
// 不变量：Sources 非空；同一响应内 CombinedScore 随 Rank 非递增（多样性调整除外）。
type RecommendationItem struct {
	ProductID     string         `json:"product_id"`
	Name          string         `json:"name,omitempty"`
	Rank          int            `json:"rank"`
	CombinedScore float64        `json:"combined_score"`
	Sources       []string       `json:"sources"`
	Explanation   string         `json:"explanation"`
	Category      string         `json:"category,omitempty"`
	Rating        float64        `json:"rating,omitempty"`
	Breakdown     ScoreBreakdown `json:"breakdown"`
}
