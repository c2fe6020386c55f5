// Package service 是推荐引擎对外的唯一入口：获取推荐、写入行为、诊断。
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/explain"
	"github.com/rushteam/hybridrec/feedback"
	"github.com/rushteam/hybridrec/filter"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/rerank"
)

const (
	DefaultLimit = 4
	MaxLimit     = 100

	DefaultSourceTimeout         = 2 * time.Second
	DefaultCategoryLookupTimeout = 300 * time.Millisecond
)

// 推荐策略，由哪些信号源返回了候选决定。
const (
	StrategyColdStart             = "cold-start/trending"
	StrategyPersonalCollaborative = "personal+collaborative"
	StrategyPersonalOnly          = "personal-only"
	StrategyBySeed                = "by-seed"
)

// Deps 是 Recommender 依赖的外部组件。Store 必填，其余可选。
type Deps struct {
	Store core.InteractionStore

	// Catalog 为空时不启用个性化召回、目录补全和按种子推荐
	Catalog core.CatalogService

	// Snapshot 热门榜快照
	Snapshot core.KeyValueStore

	// Cache 推荐结果缓存
	Cache core.Store

	Collector feedback.Collector
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Options 是可调参数，零值使用默认值。
type Options struct {
	Weights             rerank.Weights
	Epsilon             float64
	HalfLife            time.Duration
	SimilarityThreshold float64
	NeighborScan        int

	TrendingWindow  time.Duration
	TrendingMinSize int
	FallbackIDs     []string

	SourceTimeout         time.Duration
	CategoryLookupTimeout time.Duration
	CacheTTL              time.Duration

	// Filters 追加到排序链路中的过滤器（CEL 规则、黑名单）
	Filters []filter.Filter

	// Pipeline 非空时替换默认排序链路
	Pipeline *pipeline.Pipeline
}

// Result 是一次推荐的结果。
type Result struct {
	Items    []core.RecommendationItem `json:"recommendations"`
	Strategy string                    `json:"strategy"`
	Sources  []recall.SourceResult     `json:"sources,omitempty"`
	Cached   bool                      `json:"-"`
}

// DebugInfo 是诊断信息。
type DebugInfo struct {
	InteractionCount int                   `json:"interactionCount"`
	Strategy         string                `json:"strategy"`
	Sources          []recall.SourceResult `json:"sources,omitempty"`
}

// Recommender 编排三路召回、融合排序与推荐理由。
type Recommender struct {
	store     core.InteractionStore
	catalog   core.CatalogService
	profiles  *recall.ProfileBuilder
	personal  *recall.Personal
	trending  *recall.Trending
	fanout    *recall.Fanout
	engine    *rerank.Engine
	cache     *ResultCache
	collector feedback.Collector
	logger    zerolog.Logger
	now       func() time.Time

	lookupTimeout time.Duration
}

// New 组装 Recommender。
func New(deps Deps, opts Options) *Recommender {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger

	profiles := recall.NewProfileBuilder(deps.Store)
	profiles.Now = now
	if opts.HalfLife > 0 {
		profiles.HalfLife = opts.HalfLife
	}
	if deps.Catalog != nil {
		profiles.Resolver = deps.Catalog
	}

	r := &Recommender{
		store:     deps.Store,
		catalog:   deps.Catalog,
		profiles:  profiles,
		collector: deps.Collector,
		logger:    logger.With().Str("component", "recommender").Logger(),
		now:       now,
	}
	if r.collector == nil {
		r.collector = feedback.NopCollector{}
	}
	r.lookupTimeout = opts.CategoryLookupTimeout
	if r.lookupTimeout <= 0 {
		r.lookupTimeout = DefaultCategoryLookupTimeout
	}

	r.trending = &recall.Trending{
		Store:       deps.Store,
		Snapshot:    deps.Snapshot,
		Window:      opts.TrendingWindow,
		MinSize:     opts.TrendingMinSize,
		FallbackIDs: opts.FallbackIDs,
		Now:         now,
		Logger:      logger,
	}
	sources := make([]recall.Source, 0, 3)
	if deps.Catalog != nil {
		r.personal = &recall.Personal{Profiles: profiles, Catalog: deps.Catalog, Logger: logger}
		sources = append(sources, r.personal)
	}
	sources = append(sources,
		&recall.Collaborative{
			Profiles:     profiles,
			NeighborScan: opts.NeighborScan,
			Threshold:    opts.SimilarityThreshold,
			Logger:       logger,
		},
		r.trending,
	)
	timeout := opts.SourceTimeout
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	r.fanout = &recall.Fanout{Sources: sources, Timeout: timeout, Logger: logger}

	if opts.Pipeline != nil {
		r.engine = rerank.NewEngineWithPipeline(opts.Pipeline)
	} else {
		r.engine = rerank.NewEngine(rerank.EngineConfig{
			Weights: opts.Weights,
			Epsilon: opts.Epsilon,
			Catalog: deps.Catalog,
			Filters: opts.Filters,
			Logger:  logger,
		})
	}

	if deps.Cache != nil {
		r.cache = &ResultCache{Store: deps.Cache, TTL: opts.CacheTTL}
	}
	return r
}

// Trending 返回热门召回源，供后台快照刷新使用。
func (r *Recommender) Trending() *recall.Trending { return r.trending }

// Store 返回行为存储（健康检查用）。
func (r *Recommender) Store() core.InteractionStore { return r.store }

// ValidateLimit 校验结果数。
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return core.ErrInvalidRequest.With("limit must be positive")
	}
	if limit > MaxLimit {
		return core.ErrInvalidRequest.With("limit exceeds maximum")
	}
	return nil
}

// GetRecommendations 返回 userID 的推荐列表。
//
// 保证：要么返回非空列表，要么返回带类型的错误。
// 行为历史为空不是错误（冷启动走热门）；目录不可用只会让个性化召回为空；
// 三路全部失败时返回 StoreUnavailable。
func (r *Recommender) GetRecommendations(ctx context.Context, userID string, limit int) (res *Result, err error) {
	start := time.Now()
	defer func() {
		strategy := ""
		if res != nil {
			strategy = res.Strategy
		}
		metrics.RecordRecommendation(strategy, time.Since(start), err)
	}()

	if err := ValidateLimit(limit); err != nil {
		return nil, err
	}
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, userID, limit); ok {
			return cached, nil
		}
	}

	rctx := r.newContext(ctx, userID, limit)
	fan, err := r.fanout.Run(ctx, rctx)
	if err != nil {
		return nil, err
	}
	if fan.AllFailed() {
		first := fan.FirstError()
		if core.IsDomainError(first) {
			return nil, first
		}
		return nil, core.ErrStoreUnavailable.Wrap(first)
	}

	ranked, err := r.engine.Rank(ctx, rctx,
		fan.Items(core.SourcePersonal),
		fan.Items(core.SourceCollaborative),
		fan.Items(core.SourceTrending),
		limit,
	)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, core.ErrNoCandidates
	}

	res = &Result{
		Items:    explain.Items(ranked),
		Strategy: strategyOf(fan),
		Sources:  fan.Results,
	}
	if r.cache != nil {
		r.cache.Set(ctx, userID, limit, res)
	}
	if userID != "" {
		_ = r.collector.Record(ctx, feedback.ImpressionEvents(userID, res.Strategy, res.Items, r.now())...)
	}
	return res, nil
}

// newContext 构建请求上下文。行为存储不可读时已交互集合为空，继续由热门兜底。
func (r *Recommender) newContext(ctx context.Context, userID string, limit int) *core.RecommendContext {
	rctx := &core.RecommendContext{
		UserID:     userID,
		Limit:      limit,
		Interacted: map[string]struct{}{},
		Params:     map[string]any{},
	}
	if userID == "" {
		return rctx
	}
	hist, err := r.profiles.StoreOnly().Build(ctx, userID)
	if err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("load interaction history failed")
		return rctx
	}
	rctx.User = hist.Profile
	rctx.Interacted = hist.Interacted()
	return rctx
}

func strategyOf(fan *recall.FanoutResult) string {
	personal := len(fan.Items(core.SourcePersonal)) > 0
	collaborative := len(fan.Items(core.SourceCollaborative)) > 0
	switch {
	case collaborative:
		return StrategyPersonalCollaborative
	case personal:
		return StrategyPersonalOnly
	default:
		return StrategyColdStart
	}
}

// DebugSnapshot 返回用户行为数以及本次会使用的策略。
func (r *Recommender) DebugSnapshot(ctx context.Context, userID string) (*DebugInfo, error) {
	info := &DebugInfo{Strategy: StrategyColdStart}
	if userID != "" {
		n, err := r.store.CountByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		info.InteractionCount = n
	}
	fan, err := r.fanout.Run(ctx, r.newContext(ctx, userID, DefaultLimit))
	if err != nil {
		return nil, err
	}
	info.Strategy = strategyOf(fan)
	info.Sources = fan.Results
	return info, nil
}

// History 返回用户最近的行为，新到旧。
func (r *Recommender) History(ctx context.Context, userID string, limit int) ([]core.Interaction, error) {
	if userID == "" {
		return nil, core.ErrInvalidRequest.With("empty user id")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > recall.DefaultWindow {
		limit = recall.DefaultWindow
	}
	return r.store.QueryByUser(ctx, userID, core.QueryOptions{Limit: limit})
}

// RecommendBySeed 返回与一组种子商品相似的商品（不含种子本身）。
// seeds 的 value 是种子权重（例如购物车高于浏览）。没有可用的商品目录时返回 CatalogUnavailable。
func (r *Recommender) RecommendBySeed(ctx context.Context, seeds map[string]float64, limit int) (*Result, error) {
	if err := ValidateLimit(limit); err != nil {
		return nil, err
	}
	weights := make(map[string]float64, len(seeds))
	rctx := &core.RecommendContext{Limit: limit, Interacted: map[string]struct{}{}}
	for id, w := range seeds {
		if id == "" || w <= 0 {
			continue
		}
		weights[id] = w
		rctx.Interacted[id] = struct{}{}
	}
	if len(weights) == 0 {
		return nil, core.ErrInvalidRequest.With("no seed products")
	}
	if r.personal == nil {
		return nil, core.ErrCatalogUnavailable.With("no catalog configured")
	}

	seed, err := r.personal.SeedVector(ctx, weights)
	if err != nil {
		return nil, err
	}
	if len(seed) == 0 {
		return nil, core.ErrNoCandidates.With("seed products have no vectors")
	}
	neighbors, err := r.catalog.NearestNeighbors(ctx, seed, limit*recall.OverFetch+len(weights))
	if err != nil {
		return nil, err
	}
	candidates := make([]*core.Item, 0, len(neighbors))
	for _, nb := range neighbors {
		if rctx.HasInteracted(nb.ProductID) || nb.Score <= 0 {
			continue
		}
		it := core.NewItem(nb.ProductID)
		it.Score = nb.Score
		it.AddSourceScore(core.SourcePersonal, nb.Score)
		if nb.Category != "" {
			it.Meta[core.MetaCategory] = nb.Category
		}
		candidates = append(candidates, it)
	}
	ranked, err := r.engine.Rank(ctx, rctx, candidates, nil, nil, limit)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, core.ErrNoCandidates
	}
	return &Result{Items: explain.Items(ranked), Strategy: StrategyBySeed}, nil
}

// Close 关闭反馈收集器。存储由创建方关闭。
func (r *Recommender) Close() error {
	return r.collector.Close()
}
