package service

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/feedback"
	"github.com/rushteam/hybridrec/store"
	"github.com/rushteam/hybridrec/vector"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type event struct {
	user, product, category string
	typ                     core.InteractionType
}

func seed(t *testing.T, events ...event) *store.MemoryInteractionStore {
	t.Helper()
	s := store.NewMemoryInteractionStore()
	for i, e := range events {
		err := s.Append(context.Background(), &core.Interaction{
			UserID: e.user, ProductID: e.product, Category: e.category, Type: e.typ,
			CreatedAt: testNow.Add(-time.Duration(len(events)-i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("写入行为失败: %v", err)
		}
	}
	return s
}

func newRecommender(s core.InteractionStore, deps Deps, opts Options) *Recommender {
	deps.Store = s
	deps.Now = func() time.Time { return testNow }
	deps.Logger = zerolog.Nop()
	return New(deps, opts)
}

func ids(items []core.RecommendationItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ProductID)
	}
	return out
}

type recordingCollector struct {
	mu     sync.Mutex
	events []feedback.Event
}

func (c *recordingCollector) Record(_ context.Context, events ...feedback.Event) error {
	c.mu.Lock()
	c.events = append(c.events, events...)
	c.mu.Unlock()
	return nil
}

func (c *recordingCollector) Close() error { return nil }

func (c *recordingCollector) kinds() map[feedback.EventKind]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[feedback.EventKind]int)
	for _, e := range c.events {
		out[e.Kind]++
	}
	return out
}

// 其他用户制造的热门：p4 > p5 > p6 > p7
func trendingEvents() []event {
	return []event{
		{"u9", "p4", "", core.InteractionPurchase},
		{"u9", "p5", "", core.InteractionAddToCart},
		{"u9", "p6", "", core.InteractionWishlist},
		{"u9", "p7", "", core.InteractionClick},
	}
}

func TestGetRecommendationsColdStart(t *testing.T) {
	s := seed(t, trendingEvents()...)
	r := newRecommender(s, Deps{}, Options{})

	res, err := r.GetRecommendations(context.Background(), "newcomer", DefaultLimit)
	if err != nil {
		t.Fatalf("冷启动不应失败: %v", err)
	}
	if res.Strategy != StrategyColdStart {
		t.Errorf("期望策略 %s，实际 %s", StrategyColdStart, res.Strategy)
	}
	if got := ids(res.Items); !reflect.DeepEqual(got, []string{"p4", "p5", "p6", "p7"}) {
		t.Errorf("期望按热度排序，实际 %v", got)
	}
	for i, it := range res.Items {
		if !reflect.DeepEqual(it.Sources, []string{core.SourceTrending}) {
			t.Errorf("冷启动结果来源应只有 trending，实际 %v", it.Sources)
		}
		if it.Rank != i+1 {
			t.Errorf("名次错误: %d != %d", it.Rank, i+1)
		}
		if it.Explanation != "Popular right now." {
			t.Errorf("推荐理由错误: %q", it.Explanation)
		}
	}
}

func TestGetRecommendationsExcludesInteracted(t *testing.T) {
	events := append([]event{
		{"u1", "p1", "", core.InteractionView},
		{"u1", "p2", "", core.InteractionWishlist},
		{"u1", "p3", "", core.InteractionPurchase},
	}, trendingEvents()...)
	s := seed(t, events...)
	r := newRecommender(s, Deps{}, Options{})

	res, err := r.GetRecommendations(context.Background(), "u1", 4)
	if err != nil {
		t.Fatalf("GetRecommendations 失败: %v", err)
	}
	if len(res.Items) != 4 {
		t.Fatalf("期望 4 个结果，实际 %v", ids(res.Items))
	}
	for _, it := range res.Items {
		switch it.ProductID {
		case "p1", "p2", "p3":
			t.Errorf("不应推荐已交互商品 %s", it.ProductID)
		}
		if !reflect.DeepEqual(it.Sources, []string{core.SourceTrending}) {
			t.Errorf("期望来源 trending，实际 %v", it.Sources)
		}
	}
}

// 其他用户购买 p01–p20、点击 p21–p25；当前用户浏览过热门榜的一部分或全部头部。
func TestGetRecommendationsTrendingAfterExclusion(t *testing.T) {
	product := func(i int) string { return fmt.Sprintf("p%02d", i) }
	tests := []struct {
		name   string
		viewed int
		want   []string
	}{
		{"partial overlap", 3, []string{"p04", "p05", "p06", "p07"}},
		{"whole head", 20, []string{"p21", "p22", "p23", "p24"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []event
			for i := 1; i <= 20; i++ {
				events = append(events, event{"y", product(i), "", core.InteractionPurchase})
			}
			for i := 21; i <= 25; i++ {
				events = append(events, event{"y", product(i), "", core.InteractionClick})
			}
			for i := 1; i <= tt.viewed; i++ {
				events = append(events, event{"x", product(i), "", core.InteractionView})
			}
			r := newRecommender(seed(t, events...), Deps{}, Options{})

			res, err := r.GetRecommendations(context.Background(), "x", 4)
			if err != nil {
				t.Fatalf("GetRecommendations 失败: %v", err)
			}
			if got := ids(res.Items); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("期望 %v，实际 %v", tt.want, got)
			}
		})
	}
}

func TestGetRecommendationsInvalidLimit(t *testing.T) {
	r := newRecommender(store.NewMemoryInteractionStore(), Deps{}, Options{})
	for _, limit := range []int{0, -1, MaxLimit + 1} {
		if _, err := r.GetRecommendations(context.Background(), "u1", limit); !core.IsInvalidRequest(err) {
			t.Errorf("limit=%d 期望 InvalidRequest，实际 %v", limit, err)
		}
	}
}

func TestGetRecommendationsDeterministic(t *testing.T) {
	s := seed(t, trendingEvents()...)
	r := newRecommender(s, Deps{}, Options{})

	first, err := r.GetRecommendations(context.Background(), "u1", 3)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.GetRecommendations(context.Background(), "u1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Items, second.Items) {
		t.Errorf("相同状态应输出相同结果:\n%v\n%v", first.Items, second.Items)
	}
}

func TestGetRecommendationsHybrid(t *testing.T) {
	catalog := vector.NewMemoryCatalog(
		&core.Product{ID: "p1", Category: "shoes", Rating: 4.5, Vector: []float64{1, 0, 0}},
		&core.Product{ID: "p2", Category: "shoes", Rating: 4.0, Vector: []float64{0.9, 0.1, 0}},
		&core.Product{ID: "p3", Category: "shoes", Rating: 3.5, Vector: []float64{0.8, 0.2, 0}},
		&core.Product{ID: "p10", Category: "books", Vector: []float64{0, 1, 0}},
	)
	s := seed(t,
		event{"u2", "p1", "shoes", core.InteractionPurchase},
		event{"u2", "p3", "shoes", core.InteractionPurchase},
		event{"u1", "p1", "shoes", core.InteractionPurchase},
	)
	r := newRecommender(s, Deps{Catalog: catalog}, Options{})

	res, err := r.GetRecommendations(context.Background(), "u1", 4)
	if err != nil {
		t.Fatalf("GetRecommendations 失败: %v", err)
	}
	if res.Strategy != StrategyPersonalCollaborative {
		t.Errorf("期望策略 %s，实际 %s", StrategyPersonalCollaborative, res.Strategy)
	}
	if got := ids(res.Items); !reflect.DeepEqual(got, []string{"p3", "p2"}) {
		t.Fatalf("期望 [p3 p2]，实际 %v", got)
	}
	top := res.Items[0]
	want := []string{core.SourcePersonal, core.SourceCollaborative, core.SourceTrending}
	if !reflect.DeepEqual(top.Sources, want) {
		t.Errorf("期望来源 %v，实际 %v", want, top.Sources)
	}
	if strings.Count(top.Explanation, " Also: ") != 2 {
		t.Errorf("多来源理由应以 Also 连接: %q", top.Explanation)
	}
	if top.Category != "shoes" || top.Rating != 3.5 {
		t.Errorf("目录补全错误: %+v", top)
	}
}

func TestGetRecommendationsCatalogDown(t *testing.T) {
	catalog := vector.NewMemoryCatalog(&core.Product{ID: "p1", Category: "shoes", Vector: []float64{1, 0}})
	catalog.SetDown(true)
	s := seed(t, append([]event{{"u1", "p1", "shoes", core.InteractionPurchase}}, trendingEvents()...)...)
	r := newRecommender(s, Deps{Catalog: catalog}, Options{})

	res, err := r.GetRecommendations(context.Background(), "u1", 4)
	if err != nil {
		t.Fatalf("目录不可用应降级而不是失败: %v", err)
	}
	if len(res.Items) == 0 {
		t.Fatal("降级后仍应有结果")
	}
	if res.Strategy != StrategyColdStart {
		t.Errorf("期望策略 %s，实际 %s", StrategyColdStart, res.Strategy)
	}
	var personalFailed bool
	for _, sr := range res.Sources {
		if sr.Name == core.SourcePersonal && sr.Failed() {
			personalFailed = true
		}
	}
	if !personalFailed {
		t.Errorf("期望 personal 源记录失败: %+v", res.Sources)
	}
}

func TestGetRecommendationsStoreDown(t *testing.T) {
	t.Run("no snapshot", func(t *testing.T) {
		s := seed(t, trendingEvents()...)
		r := newRecommender(s, Deps{}, Options{})
		_ = s.Close()

		_, err := r.GetRecommendations(context.Background(), "u1", 4)
		if !core.IsStoreUnavailable(err) {
			t.Fatalf("期望 StoreUnavailable，实际 %v", err)
		}
	})

	t.Run("serves snapshot", func(t *testing.T) {
		s := seed(t, trendingEvents()...)
		snap := store.NewMemoryStore()
		defer snap.Close()
		r := newRecommender(s, Deps{Snapshot: snap}, Options{})

		if _, err := r.GetRecommendations(context.Background(), "u1", 4); err != nil {
			t.Fatal(err)
		}
		_ = s.Close()

		res, err := r.GetRecommendations(context.Background(), "u1", 2)
		if err != nil {
			t.Fatalf("存储不可用时应读快照: %v", err)
		}
		if got := ids(res.Items); !reflect.DeepEqual(got, []string{"p4", "p5"}) {
			t.Errorf("期望快照 [p4 p5]，实际 %v", got)
		}
	})

	t.Run("fallback ids", func(t *testing.T) {
		s := store.NewMemoryInteractionStore()
		_ = s.Close()
		r := newRecommender(s, Deps{}, Options{FallbackIDs: []string{"f1", "f2"}})

		res, err := r.GetRecommendations(context.Background(), "", 4)
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(res.Items); !reflect.DeepEqual(got, []string{"f1", "f2"}) {
			t.Errorf("期望兜底 [f1 f2]，实际 %v", got)
		}
	})
}

func TestGetRecommendationsNoCandidates(t *testing.T) {
	r := newRecommender(store.NewMemoryInteractionStore(), Deps{}, Options{})
	if _, err := r.GetRecommendations(context.Background(), "u1", 4); !core.IsNoCandidates(err) {
		t.Fatalf("空系统期望 NoCandidates，实际 %v", err)
	}
}

func TestGetRecommendationsDiversity(t *testing.T) {
	var events []event
	for _, p := range []string{"a1", "a2", "a3", "a4"} {
		events = append(events, event{"u9", p, "audio", core.InteractionPurchase})
	}
	events = append(events,
		event{"u9", "b1", "books", core.InteractionView},
		event{"u9", "c1", "cameras", core.InteractionView},
	)
	r := newRecommender(seed(t, events...), Deps{}, Options{})

	res, err := r.GetRecommendations(context.Background(), "newcomer", 3)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]int{}
	for _, it := range res.Items {
		counts[it.Category]++
	}
	if len(res.Items) != 3 || counts["audio"] != 1 {
		t.Errorf("单个类目最多 1 个，实际 %v %v", ids(res.Items), counts)
	}
}

func TestCaptureInteraction(t *testing.T) {
	t.Run("invalid type is not written", func(t *testing.T) {
		s := store.NewMemoryInteractionStore()
		r := newRecommender(s, Deps{}, Options{})

		_, err := r.CaptureInteraction(context.Background(), "u1", "p1", "teleport")
		if !core.IsInvalidInteraction(err) {
			t.Fatalf("期望 InvalidInteraction，实际 %v", err)
		}
		if n, _ := s.CountByUser(context.Background(), "u1"); n != 0 {
			t.Errorf("非法行为不应写入，count=%d", n)
		}
	})

	t.Run("empty product", func(t *testing.T) {
		r := newRecommender(store.NewMemoryInteractionStore(), Deps{}, Options{})
		if _, err := r.CaptureInteraction(context.Background(), "u1", " ", "view"); !core.IsInvalidInteraction(err) {
			t.Fatalf("期望 InvalidInteraction，实际 %v", err)
		}
	})

	t.Run("store down", func(t *testing.T) {
		s := store.NewMemoryInteractionStore()
		_ = s.Close()
		r := newRecommender(s, Deps{}, Options{})
		if _, err := r.CaptureInteraction(context.Background(), "u1", "p1", "view"); !core.IsStoreUnavailable(err) {
			t.Fatalf("期望 StoreUnavailable，实际 %v", err)
		}
	})

	t.Run("category lookup", func(t *testing.T) {
		catalog := vector.NewMemoryCatalog(&core.Product{ID: "p1", Category: "shoes"})
		s := store.NewMemoryInteractionStore()
		collector := &recordingCollector{}
		r := newRecommender(s, Deps{Catalog: catalog, Collector: collector}, Options{})

		in, err := r.CaptureInteraction(context.Background(), "u1", "p1", "add-to-cart")
		if err != nil {
			t.Fatal(err)
		}
		if in.Type != core.InteractionAddToCart || in.Category != "shoes" || in.ID == 0 {
			t.Errorf("写入内容错误: %+v", in)
		}
		in, err = r.CaptureInteraction(context.Background(), "u1", "p2", "search", WithQuery(" boots "), WithCategory("outdoor"))
		if err != nil {
			t.Fatal(err)
		}
		if in.Query != "boots" || in.Category != "outdoor" {
			t.Errorf("可选字段错误: %+v", in)
		}
		if got := collector.kinds()[feedback.EventInteraction]; got != 2 {
			t.Errorf("期望 2 个行为事件，实际 %d", got)
		}
	})
}

func TestCaptureInvalidatesCache(t *testing.T) {
	s := seed(t, trendingEvents()...)
	cache := store.NewMemoryStore()
	defer cache.Close()
	r := newRecommender(s, Deps{Cache: cache}, Options{})
	ctx := context.Background()

	first, err := r.GetRecommendations(ctx, "u1", 4)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached || first.Items[0].ProductID != "p4" {
		t.Fatalf("首次请求不应命中缓存: %+v", first)
	}
	again, err := r.GetRecommendations(ctx, "u1", 4)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Cached || !reflect.DeepEqual(ids(again.Items), ids(first.Items)) {
		t.Fatalf("第二次请求应命中缓存: %+v", again)
	}

	if _, err := r.CaptureInteraction(ctx, "u1", "p4", "purchase"); err != nil {
		t.Fatal(err)
	}
	after, err := r.GetRecommendations(ctx, "u1", 4)
	if err != nil {
		t.Fatal(err)
	}
	if after.Cached {
		t.Fatal("写入行为后缓存应失效")
	}
	for _, id := range ids(after.Items) {
		if id == "p4" {
			t.Errorf("已购买的 p4 不应再出现: %v", ids(after.Items))
		}
	}
}

func TestImpressionsRecorded(t *testing.T) {
	collector := &recordingCollector{}
	r := newRecommender(seed(t, trendingEvents()...), Deps{Collector: collector}, Options{})

	res, err := r.GetRecommendations(context.Background(), "u1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := collector.kinds()[feedback.EventImpression]; got != len(res.Items) {
		t.Errorf("期望 %d 个曝光事件，实际 %d", len(res.Items), got)
	}
}

func TestDebugSnapshot(t *testing.T) {
	s := seed(t, append([]event{
		{"u1", "p1", "", core.InteractionView},
		{"u1", "p2", "", core.InteractionClick},
	}, trendingEvents()...)...)
	r := newRecommender(s, Deps{}, Options{})

	info, err := r.DebugSnapshot(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if info.InteractionCount != 2 || info.Strategy != StrategyColdStart {
		t.Errorf("诊断信息错误: %+v", info)
	}
}

func TestHistory(t *testing.T) {
	s := seed(t,
		event{"u1", "p1", "", core.InteractionView},
		event{"u1", "p2", "", core.InteractionPurchase},
	)
	r := newRecommender(s, Deps{}, Options{})

	list, err := r.History(context.Background(), "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ProductID != "p2" {
		t.Errorf("期望新到旧 [p2 p1]，实际 %+v", list)
	}
	if _, err := r.History(context.Background(), "", 10); !core.IsInvalidRequest(err) {
		t.Errorf("空用户期望 InvalidRequest，实际 %v", err)
	}
}

func TestRecommendBySeed(t *testing.T) {
	catalog := vector.NewMemoryCatalog(
		&core.Product{ID: "p1", Category: "shoes", Vector: []float64{1, 0, 0}},
		&core.Product{ID: "p2", Category: "shoes", Vector: []float64{0.9, 0.1, 0}},
		&core.Product{ID: "p3", Category: "bags", Vector: []float64{0.7, 0.3, 0}},
		&core.Product{ID: "p4", Category: "books", Vector: []float64{0, 0, 1}},
	)
	r := newRecommender(store.NewMemoryInteractionStore(), Deps{Catalog: catalog}, Options{})

	res, err := r.RecommendBySeed(context.Background(), map[string]float64{"p1": 1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyBySeed {
		t.Errorf("期望策略 %s，实际 %s", StrategyBySeed, res.Strategy)
	}
	if got := ids(res.Items); !reflect.DeepEqual(got, []string{"p2", "p3"}) {
		t.Errorf("期望 [p2 p3]，实际 %v", got)
	}

	noCatalog := newRecommender(store.NewMemoryInteractionStore(), Deps{}, Options{})
	if _, err := noCatalog.RecommendBySeed(context.Background(), map[string]float64{"p1": 1}, 2); !core.IsCatalogUnavailable(err) {
		t.Errorf("无目录期望 CatalogUnavailable，实际 %v", err)
	}
}
