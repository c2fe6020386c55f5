package recall

import (
	"context"
	"math"
	"time"

	"github.com/rushteam/hybridrec/core"
)

const (
	DefaultHalfLife   = 14 * 24 * time.Hour
	DefaultWindow     = 500
	DefaultRecentSize = 20
)

// CategoryResolver 补全缺失类目（通常是 CatalogService）。
type CategoryResolver interface {
	FetchProduct(ctx context.Context, id string) (*core.Product, error)
}

// History 是一次构建的结果：画像 + 原始行为 + 商品级衰减权重。
type History struct {
	Profile *core.UserProfile

	// Interactions 最近行为，新到旧
	Interactions []core.Interaction

	// ProductWeights key: 商品 ID，value: Σ 类型权重 × 时间衰减
	ProductWeights map[string]float64

	// Categories key: 商品 ID，value: 类目（已知时）
	Categories map[string]string
}

// Interacted 返回交互过的商品集合。
func (h *History) Interacted() map[string]struct{} {
	out := make(map[string]struct{}, len(h.ProductWeights))
	for id := range h.ProductWeights {
		out[id] = struct{}{}
	}
	return out
}

// ProfileBuilder 从行为日志构建用户画像。
//
// 权重 = 行为类型权重 × 0.5^(age/HalfLife)，越新的行为贡献越大。
type ProfileBuilder struct {
	Store core.InteractionStore

	// Resolver 可选；为空时只使用行为上冗余的类目
	Resolver CategoryResolver

	HalfLife   time.Duration
	Window     int // 最多读取的行为条数
	RecentSize int // RecentProductIDs 上界

	Now func() time.Time
}

func NewProfileBuilder(store core.InteractionStore) *ProfileBuilder {
	return &ProfileBuilder{
		Store:      store,
		HalfLife:   DefaultHalfLife,
		Window:     DefaultWindow,
		RecentSize: DefaultRecentSize,
		Now:        time.Now,
	}
}

// StoreOnly 返回不查询目录的副本，用于协同过滤批量构建邻居画像。
func (b *ProfileBuilder) StoreOnly() *ProfileBuilder {
	cp := *b
	cp.Resolver = nil
	return &cp
}

// Decay 返回 age 对应的衰减系数，age<=0 为 1。
func Decay(age, halfLife time.Duration) float64 {
	if age <= 0 || halfLife <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

// InteractionScore 返回单条行为在 now 时刻的贡献。
func InteractionScore(in core.Interaction, now time.Time, halfLife time.Duration) float64 {
	return in.Type.Weight() * Decay(now.Sub(in.CreatedAt), halfLife)
}

func (b *ProfileBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *ProfileBuilder) halfLife() time.Duration {
	if b.HalfLife > 0 {
		return b.HalfLife
	}
	return DefaultHalfLife
}

// Build 读取用户行为并构建画像。未知用户返回空画像，不是错误。
func (b *ProfileBuilder) Build(ctx context.Context, userID string) (*History, error) {
	h := &History{
		Profile:        core.NewUserProfile(userID),
		ProductWeights: make(map[string]float64),
		Categories:     make(map[string]string),
	}
	if userID == "" || b.Store == nil {
		return h, nil
	}

	window := b.Window
	if window <= 0 {
		window = DefaultWindow
	}
	list, err := b.Store.QueryByUser(ctx, userID, core.QueryOptions{Limit: window})
	if err != nil {
		return nil, err
	}
	h.Interactions = list
	h.Profile.BuiltAt = b.now()

	recent := b.RecentSize
	if recent <= 0 {
		recent = DefaultRecentSize
	}
	for _, in := range list {
		if in.Category != "" {
			h.Categories[in.ProductID] = in.Category
		}
	}
	b.resolveMissing(ctx, h)

	now := h.Profile.BuiltAt
	for _, in := range list {
		w := InteractionScore(in, now, b.halfLife())
		h.ProductWeights[in.ProductID] += w
		h.Profile.AddAffinity(h.Categories[in.ProductID], w)
		h.Profile.AddRecentProduct(in.ProductID, recent)
	}
	h.Profile.InteractionCount = len(list)
	return h, nil
}

// resolveMissing 尽力补全类目；目录错误直接放弃，不影响画像构建。
func (b *ProfileBuilder) resolveMissing(ctx context.Context, h *History) {
	if b.Resolver == nil {
		return
	}
	seen := make(map[string]struct{})
	for _, in := range h.Interactions {
		if _, ok := h.Categories[in.ProductID]; ok {
			continue
		}
		if _, ok := seen[in.ProductID]; ok {
			continue
		}
		seen[in.ProductID] = struct{}{}
		p, err := b.Resolver.FetchProduct(ctx, in.ProductID)
		if err != nil {
			if core.IsCatalogUnavailable(err) {
				return
			}
			continue
		}
		if p.Category != "" {
			h.Categories[in.ProductID] = p.Category
		}
	}
}
