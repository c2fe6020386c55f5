package service

import (
	"context"
	"strings"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/feedback"
	"github.com/rushteam/hybridrec/metrics"
)

// CaptureOption 补充行为的可选字段。
type CaptureOption func(*core.Interaction)

// WithQuery 记录搜索词（search 行为）。
func WithQuery(q string) CaptureOption {
	return func(in *core.Interaction) { in.Query = strings.TrimSpace(q) }
}

// WithCategory 由调用方直接给出商品类目，跳过目录查询。
func WithCategory(c string) CaptureOption {
	return func(in *core.Interaction) { in.Category = strings.TrimSpace(c) }
}

// CaptureInteraction 追加一条行为。
//
// 类型非法返回 InvalidInteraction 且不写入；存储故障返回 StoreUnavailable。
// 写入成功后使该用户的推荐缓存失效，并尽力投递反馈事件。
func (r *Recommender) CaptureInteraction(
	ctx context.Context,
	userID, productID, typ string,
	opts ...CaptureOption,
) (in *core.Interaction, err error) {
	label := "invalid"
	defer func() { metrics.RecordCapture(label, err) }()

	t, err := core.ParseInteractionType(typ)
	if err != nil {
		return nil, err
	}
	label = string(t)
	in = &core.Interaction{
		UserID:    strings.TrimSpace(userID),
		ProductID: strings.TrimSpace(productID),
		Type:      t,
		CreatedAt: r.now(),
	}
	for _, opt := range opts {
		opt(in)
	}
	if err := core.ValidateInteraction(in); err != nil {
		return nil, err
	}
	if in.Category == "" {
		in.Category = r.lookupCategory(ctx, in.ProductID)
	}

	if err := r.store.Append(ctx, in); err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, in.UserID); err != nil {
			r.logger.Warn().Err(err).Str("user_id", in.UserID).Msg("invalidate recommendation cache failed")
		}
	}
	_ = r.collector.Record(ctx, feedback.InteractionEvent(in))
	return in, nil
}

// lookupCategory 在短超时内从目录读取类目，失败返回空串。
func (r *Recommender) lookupCategory(ctx context.Context, productID string) string {
	if r.catalog == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()
	p, err := r.catalog.FetchProduct(ctx, productID)
	if err != nil {
		if !core.IsNotFound(err) {
			r.logger.Debug().Err(err).Str("product_id", productID).Msg("category lookup failed")
		}
		return ""
	}
	return p.Category
}
