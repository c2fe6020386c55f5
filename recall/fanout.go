package recall

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pipeline"
)

// ParamSourceResults 是 Fanout 作为 Node 运行时写入 rctx.Params 的 key。
const ParamSourceResults = "recall.source_results"

// SourceResult 是单个召回源的执行结果。Err 非空表示该源降级（贡献为空）。
type SourceResult struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Err   error  `json:"-"`
}

// Failed 是否失败。
func (r SourceResult) Failed() bool { return r.Err != nil }

// FanoutResult 保留每个源各自的候选以及合并后的候选。
type FanoutResult struct {
	BySource map[string][]*core.Item
	Results  []SourceResult // 与 Sources 顺序一致
	Merged   []*core.Item
}

// Items 返回某个源的候选（未执行或失败时为空）。
func (r *FanoutResult) Items(source string) []*core.Item {
	if r == nil {
		return nil
	}
	return r.BySource[source]
}

// AllFailed 所有源都失败。
func (r *FanoutResult) AllFailed() bool {
	if r == nil || len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if res.Err == nil {
			return false
		}
	}
	return true
}

// FirstError 返回第一个失败源的错误。
func (r *FanoutResult) FirstError() error {
	for _, res := range r.Results {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// Fanout 是一个 Recall Node：并发执行多个召回源，并合并结果。
//
// 单个源出错或超时只记录在 SourceResult 中，不影响其他源；
// 调用方取消 ctx 时整体返回 ctx.Err()，不返回部分结果。
type Fanout struct {
	Sources       []Source
	Timeout       time.Duration // 每个召回源的超时时间
	MaxConcurrent int           // 最大并发数（0 表示无限制）
	Logger        zerolog.Logger
}

func (n *Fanout) Name() string        { return "recall.fanout" }
func (n *Fanout) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *Fanout) Process(ctx context.Context, rctx *core.RecommendContext, _ []*core.Item) ([]*core.Item, error) {
	res, err := n.Run(ctx, rctx)
	if err != nil {
		return nil, err
	}
	if rctx != nil {
		if rctx.Params == nil {
			rctx.Params = make(map[string]any)
		}
		rctx.Params[ParamSourceResults] = res.Results
	}
	return res.Merged, nil
}

// Run 并发执行所有源。
func (n *Fanout) Run(ctx context.Context, rctx *core.RecommendContext) (*FanoutResult, error) {
	out := &FanoutResult{
		BySource: make(map[string][]*core.Item, len(n.Sources)),
		Results:  make([]SourceResult, len(n.Sources)),
	}
	if len(n.Sources) == 0 {
		return out, nil
	}

	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}

	for i, src := range n.Sources {
		i, s := i, src
		eg.Go(func() error {
			recallCtx := ctx
			if n.Timeout > 0 {
				var cancel context.CancelFunc
				recallCtx, cancel = context.WithTimeout(ctx, n.Timeout)
				defer cancel()
			}

			items, err := s.Recall(recallCtx, rctx)
			if err == nil {
				// 源自己忽略了超时时，以超时为准
				err = recallCtx.Err()
			}
			res := SourceResult{Name: s.Name(), Err: err}
			if err != nil {
				items = nil
				if ctx.Err() == nil {
					n.Logger.Warn().Err(err).Str("source", s.Name()).Msg("recall source degraded")
				}
			}
			res.Count = len(items)
			metrics.RecordSource(s.Name(), res.Count, err)

			mu.Lock()
			out.Results[i] = res
			out.BySource[s.Name()] = items
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lists := make([][]*core.Item, 0, len(n.Sources))
	for _, s := range n.Sources {
		lists = append(lists, out.BySource[s.Name()])
	}
	out.Merged = Merge(lists...)
	return out, nil
}
