package core

import (
	"math"
	"sort"
	"time"
)

// UserProfile 是从行为日志派生出来的用户画像。
//
// 它不是事实数据，每次请求都从 InteractionStore 重新计算，不会被单独修改：
//
//	字段                  作用
//	PreferredCategories   个性化召回加权 / 协同过滤相似度
//	RecentProductIDs      最近交互（新到旧，有界）
//	InteractionCount      冷启动判断
type UserProfile struct {
	UserID string

	// PreferredCategories key: 类目，value: 衰减后的加权次数
	PreferredCategories map[string]float64

	// RecentProductIDs 最近交互的商品 ID，新到旧，去重，有界
	RecentProductIDs []string

	InteractionCount int

	BuiltAt time.Time
}

// NewUserProfile 创建一个空画像。
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:              userID,
		PreferredCategories: make(map[string]float64),
		RecentProductIDs:    make([]string, 0),
		BuiltAt:             time.Now(),
	}
}

// Empty 是否没有任何行为。
func (p *UserProfile) Empty() bool {
	return p == nil || p.InteractionCount == 0
}

// AddAffinity 累加类目偏好。
func (p *UserProfile) AddAffinity(category string, weight float64) {
	if category == "" || weight == 0 {
		return
	}
	if p.PreferredCategories == nil {
		p.PreferredCategories = make(map[string]float64)
	}
	p.PreferredCategories[category] += weight
}

// AddRecentProduct 追加最近交互商品（调用方按新到旧顺序调用），去重并限制大小。
func (p *UserProfile) AddRecentProduct(productID string, maxSize int) {
	for _, id := range p.RecentProductIDs {
		if id == productID {
			return
		}
	}
	if maxSize > 0 && len(p.RecentProductIDs) >= maxSize {
		return
	}
	p.RecentProductIDs = append(p.RecentProductIDs, productID)
}

// CategoryShare 返回类目偏好占总偏好的比例（0-1）。
func (p *UserProfile) CategoryShare(category string) float64 {
	if p == nil || category == "" || len(p.PreferredCategories) == 0 {
		return 0
	}
	var total float64
	for _, w := range p.PreferredCategories {
		total += w
	}
	if total <= 0 {
		return 0
	}
	return p.PreferredCategories[category] / total
}

// TopCategories 按偏好降序返回前 n 个类目（同分按名称升序）。
func (p *UserProfile) TopCategories(n int) []string {
	cats := make([]string, 0, len(p.PreferredCategories))
	for c := range p.PreferredCategories {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		wi, wj := p.PreferredCategories[cats[i]], p.PreferredCategories[cats[j]]
		if wi != wj {
			return wi > wj
		}
		return cats[i] < cats[j]
	})
	if n > 0 && len(cats) > n {
		cats = cats[:n]
	}
	return cats
}

// CosineSimilarity 计算两个画像在类目偏好上的余弦相似度。
func CosineSimilarity(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k, va := range a {
		na += va * va
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
