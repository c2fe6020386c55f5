package vector

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
)

// BreakerConfig 熔断参数。
type BreakerConfig struct {
	Name         string        `koanf:"name"`
	MaxRequests  uint32        `koanf:"max_requests"`  // 半开状态允许的并发探测数
	Interval     time.Duration `koanf:"interval"`      // 闭合状态计数重置周期
	Timeout      time.Duration `koanf:"timeout"`       // 打开到半开的等待时间
	MinRequests  uint32        `koanf:"min_requests"`  // 触发熔断的最小请求数
	FailureRatio float64       `koanf:"failure_ratio"` // 失败率阈值
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "catalog",
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// BreakerCatalog 用熔断器包装 CatalogService。
// 熔断打开时直接返回 CatalogUnavailable，不再请求下游。
// NOT_FOUND 视为成功调用，不计入失败。
type BreakerCatalog struct {
	next   core.CatalogService
	cb     *gobreaker.CircuitBreaker[any]
	name   string
	logger zerolog.Logger
}

func NewBreakerCatalog(next core.CatalogService, cfg BreakerConfig, logger zerolog.Logger) *BreakerCatalog {
	if cfg.Name == "" {
		cfg.Name = "catalog"
	}
	b := &BreakerCatalog{next: next, name: cfg.Name, logger: logger}
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || core.IsNotFound(err) || isContextErr(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
	return b
}

func (b *BreakerCatalog) NearestNeighbors(ctx context.Context, vector []float64, k int) ([]core.Neighbor, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.NearestNeighbors(ctx, vector, k)
	})
	if err != nil {
		return nil, err
	}
	return res.([]core.Neighbor), nil
}

func (b *BreakerCatalog) FetchProduct(ctx context.Context, id string) (*core.Product, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.FetchProduct(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return res.(*core.Product), nil
}

// State 返回当前熔断状态。
func (b *BreakerCatalog) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerCatalog) execute(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return res, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, core.ErrCatalogUnavailable.Wrap(err)
	case isContextErr(err):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "canceled").Inc()
		if core.IsDomainError(err) {
			return nil, err
		}
		return nil, core.ErrCatalogUnavailable.Wrap(err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		if core.IsDomainError(err) {
			return nil, err
		}
		return nil, core.ErrCatalogUnavailable.Wrap(err)
	}
}

// isContextErr 调用方取消或召回超时，不代表下游故障，不计入熔断统计。
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
