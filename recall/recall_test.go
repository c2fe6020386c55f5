package recall

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/store"
	"github.com/rushteam/hybridrec/vector"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

type seedEvent struct {
	user, product, category string
	typ                     core.InteractionType
	ago                     time.Duration
}

func seedStore(t *testing.T, events ...seedEvent) *store.MemoryInteractionStore {
	t.Helper()
	s := store.NewMemoryInteractionStore()
	for _, e := range events {
		err := s.Append(context.Background(), &core.Interaction{
			UserID: e.user, ProductID: e.product, Category: e.category, Type: e.typ,
			CreatedAt: testNow.Add(-e.ago),
		})
		if err != nil {
			t.Fatalf("写入行为失败: %v", err)
		}
	}
	return s
}

func testBuilder(s core.InteractionStore) *ProfileBuilder {
	b := NewProfileBuilder(s)
	b.Now = fixedNow
	return b
}

func TestDecayMonotonic(t *testing.T) {
	prev := Decay(0, DefaultHalfLife)
	if prev != 1 {
		t.Fatalf("age=0 衰减应为 1，实际 %v", prev)
	}
	for d := 1; d <= 60; d++ {
		cur := Decay(time.Duration(d)*24*time.Hour, DefaultHalfLife)
		if cur >= prev {
			t.Fatalf("衰减应单调递减: day=%d %v >= %v", d, cur, prev)
		}
		prev = cur
	}
	if got := Decay(14*24*time.Hour, DefaultHalfLife); got < 0.4999 || got > 0.5001 {
		t.Errorf("半衰期处应为 0.5，实际 %v", got)
	}
}

func TestProfileBuilder_Build(t *testing.T) {
	s := seedStore(t,
		seedEvent{"u1", "p1", "shoes", core.InteractionPurchase, 28 * 24 * time.Hour},
		seedEvent{"u1", "p2", "shoes", core.InteractionView, time.Hour},
		seedEvent{"u1", "p3", "", core.InteractionClick, 2 * time.Hour},
	)
	cat := vector.NewMemoryCatalog(&core.Product{ID: "p3", Category: "bags"})

	b := testBuilder(s)
	b.Resolver = cat
	h, err := b.Build(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	if h.Profile.InteractionCount != 3 {
		t.Errorf("InteractionCount 期望 3，实际 %d", h.Profile.InteractionCount)
	}
	if h.Profile.RecentProductIDs[0] != "p2" {
		t.Errorf("RecentProductIDs 应新到旧: %v", h.Profile.RecentProductIDs)
	}
	// purchase 5 * 0.25 + view 0.5 ≈ 1.75
	if got := h.Profile.PreferredCategories["shoes"]; got < 1.74 || got > 1.76 {
		t.Errorf("shoes 偏好错误: %v", got)
	}
	if h.Profile.PreferredCategories["bags"] <= 0 {
		t.Errorf("缺失类目应由目录补全: %v", h.Profile.PreferredCategories)
	}

	empty, err := b.Build(context.Background(), "nobody")
	if err != nil || !empty.Profile.Empty() {
		t.Errorf("未知用户应返回空画像: %+v %v", empty.Profile, err)
	}
}

func TestProfileBuilder_ResolverDownIgnored(t *testing.T) {
	s := seedStore(t, seedEvent{"u1", "p3", "", core.InteractionClick, time.Hour})
	cat := vector.NewMemoryCatalog()
	cat.SetDown(true)
	b := testBuilder(s)
	b.Resolver = cat
	h, err := b.Build(context.Background(), "u1")
	if err != nil {
		t.Fatalf("目录不可用不应影响画像构建: %v", err)
	}
	if h.Profile.InteractionCount != 1 {
		t.Errorf("画像不完整: %+v", h.Profile)
	}
}

func personalCatalog() *vector.MemoryCatalog {
	return vector.NewMemoryCatalog(
		&core.Product{ID: "s1", Category: "shoes", Vector: []float64{1, 0, 0}},
		&core.Product{ID: "s2", Category: "shoes", Vector: []float64{0.95, 0.05, 0}},
		&core.Product{ID: "s3", Category: "shoes", Vector: []float64{0.9, 0.1, 0}},
		&core.Product{ID: "b1", Category: "bags", Vector: []float64{0.9, 0.1, 0}},
		&core.Product{ID: "h1", Category: "hats", Vector: []float64{0, 0, 1}},
	)
}

func TestPersonal_ExcludesInteractedAndBoostsCategory(t *testing.T) {
	s := seedStore(t, seedEvent{"u1", "s1", "shoes", core.InteractionPurchase, time.Hour})
	r := &Personal{Profiles: testBuilder(s), Catalog: personalCatalog()}

	items, err := r.Recall(context.Background(), &core.RecommendContext{UserID: "u1", Limit: 2})
	if err != nil {
		t.Fatalf("Recall 失败: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("应有候选")
	}
	for _, it := range items {
		if it.ID == "s1" {
			t.Errorf("已交互商品不应出现")
		}
		if it.Sources()[0] != core.SourcePersonal {
			t.Errorf("来源错误: %v", it.Sources())
		}
	}
	// s3 与 b1 相似度相同，s3 属于偏好类目，应排在前面
	var s3, b1 float64
	for _, it := range items {
		switch it.ID {
		case "s3":
			s3 = it.Score
		case "b1":
			b1 = it.Score
		}
	}
	if s3 <= b1 {
		t.Errorf("偏好类目应加权: s3=%v b1=%v", s3, b1)
	}
}

func TestPersonal_EmptyHistoryAndCatalogDown(t *testing.T) {
	s := seedStore(t, seedEvent{"u1", "s1", "shoes", core.InteractionPurchase, time.Hour})
	cat := personalCatalog()
	r := &Personal{Profiles: testBuilder(s), Catalog: cat}

	items, err := r.Recall(context.Background(), &core.RecommendContext{UserID: "new"})
	if err != nil || len(items) != 0 {
		t.Errorf("无历史应返回空: %v %v", items, err)
	}

	cat.SetDown(true)
	if _, err := r.Recall(context.Background(), &core.RecommendContext{UserID: "u1"}); !core.IsCatalogUnavailable(err) {
		t.Errorf("期望 CATALOG_UNAVAILABLE，实际 %v", err)
	}
}

func TestCollaborative_Threshold(t *testing.T) {
	s := seedStore(t,
		seedEvent{"u1", "s1", "shoes", core.InteractionPurchase, time.Hour},
		// u2 与 u1 偏好一致
		seedEvent{"u2", "s1", "shoes", core.InteractionView, 3 * time.Hour},
		seedEvent{"u2", "s9", "shoes", core.InteractionPurchase, 2 * time.Hour},
		seedEvent{"u2", "s8", "shoes", core.InteractionView, 2 * time.Hour},
		// u3 偏好完全不同
		seedEvent{"u3", "h1", "hats", core.InteractionPurchase, 2 * time.Hour},
	)
	r := &Collaborative{Profiles: testBuilder(s)}
	items, err := r.Recall(context.Background(), &core.RecommendContext{UserID: "u1", Limit: 5})
	if err != nil {
		t.Fatalf("Recall 失败: %v", err)
	}
	if len(items) != 1 || items[0].ID != "s9" {
		t.Fatalf("只应推荐相似用户的强正反馈商品: %+v", items)
	}
	if items[0].Category() != "shoes" {
		t.Errorf("类目应来自行为日志: %q", items[0].Category())
	}

	cold, err := r.Recall(context.Background(), &core.RecommendContext{UserID: "new"})
	if err != nil || len(cold) != 0 {
		t.Errorf("无历史应返回空: %v %v", cold, err)
	}
}

type brokenStore struct{ core.InteractionStore }

var errDisk = errors.New("disk gone")

func (brokenStore) QuerySince(context.Context, time.Time, int) ([]core.Interaction, error) {
	return nil, core.ErrStoreUnavailable.Wrap(errDisk)
}

func TestTrending_SnapshotAndFallback(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t,
		seedEvent{"u1", "p1", "shoes", core.InteractionPurchase, time.Hour},
		seedEvent{"u2", "p2", "bags", core.InteractionView, time.Hour},
		seedEvent{"u3", "old", "bags", core.InteractionPurchase, 10 * 24 * time.Hour},
	)
	kv := store.NewMemoryStore()
	defer kv.Close()

	tr := &Trending{Store: s, Snapshot: kv, Now: fixedNow, FallbackIDs: []string{"f1", "f2"}}
	items, err := tr.Recall(ctx, &core.RecommendContext{Limit: 5})
	if err != nil {
		t.Fatalf("Recall 失败: %v", err)
	}
	if len(items) != 2 || items[0].ID != "p1" || items[1].ID != "p2" {
		t.Fatalf("热门结果错误（窗口外的行为不应计入）: %+v", items)
	}

	// 存储故障：读快照
	tr.Store = brokenStore{}
	snap, err := tr.Recall(ctx, nil)
	if err != nil || len(snap) != 2 || snap[0].ID != "p1" || snap[0].Category() != "shoes" {
		t.Fatalf("应使用快照: %+v %v", snap, err)
	}

	// 快照为空：FallbackIDs
	_ = kv.Delete(ctx, DefaultSnapshotKey)
	fb, err := tr.Recall(ctx, nil)
	if err != nil || len(fb) != 2 || fb[0].ID != "f1" || fb[0].Score <= fb[1].Score {
		t.Fatalf("应使用 FallbackIDs: %+v %v", fb, err)
	}

	// 都没有：返回存储错误
	tr.FallbackIDs = nil
	if _, err := tr.Recall(ctx, nil); !core.IsStoreUnavailable(err) {
		t.Errorf("期望 STORE_UNAVAILABLE，实际 %v", err)
	}
}

func TestTrending_MinSize(t *testing.T) {
	var events []seedEvent
	for i := 0; i < 30; i++ {
		events = append(events, seedEvent{"u", string(rune('a'+i%26)) + string(rune('0'+i/26)), "", core.InteractionView, time.Minute})
	}
	tr := &Trending{Store: seedStore(t, events...), Now: fixedNow}
	items, err := tr.Recall(context.Background(), &core.RecommendContext{Limit: 2})
	if err != nil {
		t.Fatalf("Recall 失败: %v", err)
	}
	if len(items) != DefaultTrendingMinSize {
		t.Errorf("期望至少 %d 个，实际 %d", DefaultTrendingMinSize, len(items))
	}
}

func TestTrending_SkipsInteractedBeforeTruncate(t *testing.T) {
	ctx := context.Background()
	var events []seedEvent
	for i := 0; i < 25; i++ {
		typ := core.InteractionPurchase
		if i >= 20 {
			typ = core.InteractionClick
		}
		events = append(events, seedEvent{"y", fmt.Sprintf("p%02d", i), "", typ, time.Hour})
	}
	kv := store.NewMemoryStore()
	defer kv.Close()
	tr := &Trending{Store: seedStore(t, events...), Snapshot: kv, Now: fixedNow, FallbackIDs: []string{"p00", "f1"}}

	interacted := map[string]struct{}{}
	for i := 0; i < 20; i++ {
		interacted[fmt.Sprintf("p%02d", i)] = struct{}{}
	}
	rctx := &core.RecommendContext{Limit: 2, Interacted: interacted}

	items, err := tr.Recall(ctx, rctx)
	if err != nil {
		t.Fatalf("Recall 失败: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("期望 5 个未交互商品，实际 %d", len(items))
	}
	for _, it := range items {
		if rctx.HasInteracted(it.ID) {
			t.Errorf("不应返回已交互商品 %s", it.ID)
		}
	}

	// 快照路径同样先排除再截断
	tr.Store = brokenStore{}
	snap, err := tr.Recall(ctx, rctx)
	if err != nil || len(snap) != 5 || rctx.HasInteracted(snap[0].ID) {
		t.Fatalf("快照结果错误: %+v %v", snap, err)
	}

	// 兜底列表也排除已交互商品
	_ = kv.Delete(ctx, DefaultSnapshotKey)
	fb, err := tr.Recall(ctx, rctx)
	if err != nil || len(fb) != 1 || fb[0].ID != "f1" {
		t.Fatalf("兜底结果错误: %+v %v", fb, err)
	}
}

type stubSource struct {
	name  string
	items []*core.Item
	err   error
	delay time.Duration
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Recall(ctx context.Context, _ *core.RecommendContext) ([]*core.Item, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.items, s.err
}

func sourced(source, id string, score float64) *core.Item {
	it := core.NewItem(id)
	it.Score = score
	it.AddSourceScore(source, score)
	return it
}

func TestFanout_MergeAndDegrade(t *testing.T) {
	f := &Fanout{
		Timeout: 50 * time.Millisecond,
		Sources: []Source{
			&stubSource{name: core.SourcePersonal, items: []*core.Item{sourced(core.SourcePersonal, "a", 0.9)}},
			&stubSource{name: core.SourceCollaborative, err: errors.New("boom")},
			&stubSource{name: core.SourceTrending, items: []*core.Item{sourced(core.SourceTrending, "a", 3), sourced(core.SourceTrending, "b", 1)}},
			&stubSource{name: "slow", delay: time.Second},
		},
	}
	res, err := f.Run(context.Background(), &core.RecommendContext{UserID: "u1"})
	if err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if len(res.Merged) != 2 || res.Merged[0].ID != "a" {
		t.Fatalf("合并结果错误: %+v", res.Merged)
	}
	a := res.Merged[0]
	if got := a.Sources(); len(got) != 2 || got[0] != core.SourcePersonal || got[1] != core.SourceTrending {
		t.Errorf("来源合并错误: %v", got)
	}
	if a.SourceScore(core.SourceTrending) != 3 || a.SourceScore(core.SourcePersonal) != 0.9 {
		t.Errorf("来源分合并错误: %v", a.Features)
	}
	if !res.Results[1].Failed() || !res.Results[3].Failed() || res.Results[0].Failed() {
		t.Errorf("失败记录错误: %+v", res.Results)
	}
	if res.AllFailed() {
		t.Errorf("并非全部失败")
	}
}

func TestFanout_CallerCancel(t *testing.T) {
	f := &Fanout{Sources: []Source{&stubSource{name: "slow", delay: time.Second}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Run(ctx, &core.RecommendContext{}); !errors.Is(err, context.Canceled) {
		t.Errorf("调用方取消应返回 context.Canceled，实际 %v", err)
	}
}
