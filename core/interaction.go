package core

import (
	"context"
	"strings"
	"time"
)

// InteractionType 是用户行为类型。
type InteractionType string

const (
	InteractionView      InteractionType = "view"
	InteractionClick     InteractionType = "click"
	InteractionWishlist  InteractionType = "wishlist"
	InteractionAddToCart InteractionType = "add_to_cart"
	InteractionPurchase  InteractionType = "purchase"
	InteractionSearch    InteractionType = "search"
)

// interactionWeights 是各行为类型对兴趣的贡献权重。
var interactionWeights = map[InteractionType]float64{
	InteractionPurchase:  5,
	InteractionAddToCart: 3,
	InteractionWishlist:  2,
	InteractionClick:     1,
	InteractionView:      0.5,
	InteractionSearch:    0.5,
}

// interactionAliases 兼容前端上报的别名（例如 /track/add-to-cart、cart）。
var interactionAliases = map[string]InteractionType{
	"cart":        InteractionAddToCart,
	"add-to-cart": InteractionAddToCart,
	"addtocart":   InteractionAddToCart,
	"favorite":    InteractionWishlist,
	"favourite":   InteractionWishlist,
}

// Valid 是否为已知的行为类型。
func (t InteractionType) Valid() bool {
	_, ok := interactionWeights[t]
	return ok
}

// Positive 表示强正反馈（收藏/加购/购买），协同过滤只使用这类行为。
func (t InteractionType) Positive() bool {
	switch t {
	case InteractionWishlist, InteractionAddToCart, InteractionPurchase:
		return true
	default:
		return false
	}
}

// Weight 返回行为权重；未知类型为 0。
func (t InteractionType) Weight() float64 {
	return interactionWeights[t]
}

// InteractionTypes 返回全部行为类型（稳定顺序）。
func InteractionTypes() []InteractionType {
	return []InteractionType{
		InteractionView, InteractionClick, InteractionWishlist,
		InteractionAddToCart, InteractionPurchase, InteractionSearch,
	}
}

// ParseInteractionType 解析行为类型，支持别名、大小写与首尾空白。
func ParseInteractionType(s string) (InteractionType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if t := InteractionType(key); t.Valid() {
		return t, nil
	}
	if t, ok := interactionAliases[key]; ok {
		return t, nil
	}
	return "", ErrInvalidInteraction.With("unknown interaction type " + `"` + s + `"`)
}

// Interaction 是一条不可变的用户行为记录（只追加，不更新）。
type Interaction struct {
	ID        int64
	UserID    string
	ProductID string
	Type      InteractionType
	Query     string // 仅 search 行为
	Category  string // 写入时冗余的商品类目（可为空）
	CreatedAt time.Time
}

// ValidateInteraction 校验写入请求；失败返回 InvalidInteraction。
func ValidateInteraction(in *Interaction) error {
	if in == nil {
		return ErrInvalidInteraction.With("nil interaction")
	}
	if strings.TrimSpace(in.UserID) == "" {
		return ErrInvalidInteraction.With("empty user id")
	}
	if strings.TrimSpace(in.ProductID) == "" {
		return ErrInvalidInteraction.With("empty product id")
	}
	if !in.Type.Valid() {
		return ErrInvalidInteraction.With("unknown interaction type " + `"` + string(in.Type) + `"`)
	}
	return nil
}

// QueryOptions 是 QueryByUser 的可选条件。
type QueryOptions struct {
	Since time.Time // 零值表示不限
	Limit int       // <=0 表示不限
}

// InteractionStore 是用户行为日志的领域接口。
//
// 设计原则：
//   - 只追加：Append 是唯一写入口，没有更新/删除
//   - 读取容忍无界增长的日志：所有扫描都带上界
//   - 存储故障统一返回 StoreUnavailable
//
// 实现：
//   - store.SQLInteractionStore（SQLite，按 (user_id, created_at) 建索引）
//   - store.MemoryInteractionStore（测试/开发）
type InteractionStore interface {
	// Append 追加一条行为；校验失败返回 InvalidInteraction 且不写入
	Append(ctx context.Context, in *Interaction) error

	// QueryByUser 按时间倒序返回用户行为；未知用户返回空切片
	QueryByUser(ctx context.Context, userID string, opts QueryOptions) ([]Interaction, error)

	// CountByUser 返回用户行为条数
	CountByUser(ctx context.Context, userID string) (int, error)

	// RecentUsers 按最近活跃时间倒序返回最多 limit 个用户（协同过滤的有界扫描）
	RecentUsers(ctx context.Context, limit int) ([]string, error)

	// QuerySince 返回 since 之后的全局行为（热门统计），最多 limit 条，按时间倒序
	QuerySince(ctx context.Context, since time.Time, limit int) ([]Interaction, error)

	Close() error
}
