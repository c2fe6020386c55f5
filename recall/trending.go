package recall

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pipeline"
)

const (
	DefaultTrendingWindow  = 7 * 24 * time.Hour
	DefaultTrendingMinSize = 20
	DefaultTrendingScan    = 10000
	DefaultSnapshotKey     = "trending:global"
	DefaultSnapshotTTL     = time.Minute
)

// Trending 是热门召回源，与请求用户无关。
//
// 统计最近 Window 内全局行为的加权次数，取前 N（N = max(limit*3, MinSize)）。
// 每次统计成功后把结果写入 KeyValueStore 的有序集合作为快照（last-known-good）：
//   - 行为存储不可读时，读快照
//   - 快照为空时，使用 FallbackIDs
//   - 都没有时，返回存储错误
//
// 统计窗口内没有任何行为（冷启动系统）时同样使用 FallbackIDs。
type Trending struct {
	Store    core.InteractionStore
	Snapshot core.KeyValueStore // 可选

	Key         string
	Window      time.Duration
	MinSize     int
	ScanLimit   int
	FallbackIDs []string

	// SnapshotInterval 两次快照写入的最小间隔
	SnapshotInterval time.Duration

	Now    func() time.Time
	Logger zerolog.Logger

	mu        sync.Mutex
	lastWrite time.Time
}

func (r *Trending) Name() string        { return core.SourceTrending }
func (r *Trending) Kind() pipeline.Kind { return pipeline.KindRecall }

func (r *Trending) Process(ctx context.Context, rctx *core.RecommendContext, _ []*core.Item) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

func (r *Trending) key() string {
	if r.Key != "" {
		return r.Key
	}
	return DefaultSnapshotKey
}

func (r *Trending) categoryKey() string { return r.key() + ":category" }

func (r *Trending) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Trending) size(rctx *core.RecommendContext) int {
	n := fetchSize(rctx)
	minSize := r.MinSize
	if minSize <= 0 {
		minSize = DefaultTrendingMinSize
	}
	if n < minSize {
		n = minSize
	}
	return n
}

// Recall 先排除用户已交互的商品再截断，保证过滤后仍有 N 个候选。
// 统计与快照本身与用户无关。
func (r *Trending) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	n := r.size(rctx)

	items, categories, err := r.compute(ctx)
	if err == nil {
		if len(items) > 0 {
			r.maybeWriteSnapshot(ctx, items, categories, false)
			return unseen(items, rctx, n), nil
		}
		return unseen(r.fallback(len(r.FallbackIDs)), rctx, n), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	r.Logger.Warn().Err(err).Msg("trending: interaction store unavailable, serving snapshot")
	if snap := unseen(r.readSnapshot(ctx, n+interactedCount(rctx)), rctx, n); len(snap) > 0 {
		return snap, nil
	}
	if fb := unseen(r.fallback(len(r.FallbackIDs)), rctx, n); len(fb) > 0 {
		return fb, nil
	}
	return nil, err
}

// Refresh 重新统计并强制写入快照，由后台定时任务调用。
func (r *Trending) Refresh(ctx context.Context) error {
	items, categories, err := r.compute(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	r.maybeWriteSnapshot(ctx, items, categories, true)
	return nil
}

func (r *Trending) compute(ctx context.Context) ([]*core.Item, map[string]string, error) {
	window := r.Window
	if window <= 0 {
		window = DefaultTrendingWindow
	}
	scan := r.ScanLimit
	if scan <= 0 {
		scan = DefaultTrendingScan
	}
	list, err := r.Store.QuerySince(ctx, r.now().Add(-window), scan)
	if err != nil {
		return nil, nil, err
	}
	scores := make(map[string]float64)
	categories := make(map[string]string)
	for _, in := range list {
		scores[in.ProductID] += in.Type.Weight()
		if in.Category != "" {
			if _, ok := categories[in.ProductID]; !ok {
				categories[in.ProductID] = in.Category
			}
		}
	}
	return scoredItems(core.SourceTrending, scores, categories, 0), categories, nil
}

func (r *Trending) maybeWriteSnapshot(ctx context.Context, items []*core.Item, categories map[string]string, force bool) {
	if r.Snapshot == nil {
		return
	}
	interval := r.SnapshotInterval
	if interval <= 0 {
		interval = DefaultSnapshotTTL
	}
	r.mu.Lock()
	if !force && !r.lastWrite.IsZero() && r.now().Sub(r.lastWrite) < interval {
		r.mu.Unlock()
		return
	}
	r.lastWrite = r.now()
	r.mu.Unlock()

	// 先删后写，不是原子替换；读到空快照时会继续走 FallbackIDs。
	if err := r.Snapshot.Delete(ctx, r.key()); err != nil {
		r.Logger.Warn().Err(err).Msg("trending: clear snapshot failed")
		return
	}
	_ = r.Snapshot.Delete(ctx, r.categoryKey())
	for _, it := range items {
		if err := r.Snapshot.ZAdd(ctx, r.key(), it.Score, it.ID); err != nil {
			r.Logger.Warn().Err(err).Msg("trending: write snapshot failed")
			return
		}
		if c := categories[it.ID]; c != "" {
			_ = r.Snapshot.HSet(ctx, r.categoryKey(), it.ID, []byte(c))
		}
	}
	metrics.TrendingSnapshotAge.Set(float64(r.now().Unix()))
}

func (r *Trending) readSnapshot(ctx context.Context, n int) []*core.Item {
	if r.Snapshot == nil {
		return nil
	}
	members, err := r.Snapshot.ZRange(ctx, r.key(), 0, int64(n-1))
	if err != nil || len(members) == 0 {
		return nil
	}
	categories, _ := r.Snapshot.HGetAll(ctx, r.categoryKey())

	out := make([]*core.Item, 0, len(members))
	for i, id := range members {
		score, err := r.Snapshot.ZScore(ctx, r.key(), id)
		if err != nil || score <= 0 {
			score = float64(len(members) - i)
		}
		it := core.NewItem(id)
		it.Score = score
		it.AddSourceScore(core.SourceTrending, score)
		if c := string(categories[id]); c != "" {
			it.Meta[core.MetaCategory] = c
		}
		out = append(out, it)
	}
	return out
}

// fallback 按配置顺序给出递减分数。
func (r *Trending) fallback(n int) []*core.Item {
	ids := r.FallbackIDs
	if len(ids) > n {
		ids = ids[:n]
	}
	out := make([]*core.Item, 0, len(ids))
	for i, id := range ids {
		score := float64(len(ids) - i)
		it := core.NewItem(id)
		it.Score = score
		it.AddSourceScore(core.SourceTrending, score)
		out = append(out, it)
	}
	return out
}

// unseen 跳过用户已交互的商品，最多保留 n 个。
func unseen(items []*core.Item, rctx *core.RecommendContext, n int) []*core.Item {
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if rctx.HasInteracted(it.ID) {
			continue
		}
		out = append(out, it)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

func interactedCount(rctx *core.RecommendContext) int {
	if rctx == nil {
		return 0
	}
	return len(rctx.Interacted)
}
