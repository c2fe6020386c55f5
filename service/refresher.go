package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRefreshInterval 热门快照默认刷新间隔。
const DefaultRefreshInterval = time.Minute

// SnapshotRefresher 定时重算热门榜并写入快照，使存储故障时能读到较新的 last-known-good。
// 实现 suture.Service。
type SnapshotRefresher struct {
	rec      *Recommender
	interval time.Duration
	logger   zerolog.Logger
}

func NewSnapshotRefresher(rec *Recommender, interval time.Duration, logger zerolog.Logger) *SnapshotRefresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &SnapshotRefresher{
		rec:      rec,
		interval: interval,
		logger:   logger.With().Str("service", "trending-refresher").Logger(),
	}
}

// Serve 启动时刷新一次，之后按间隔刷新；失败只记日志，等下一轮。
func (s *SnapshotRefresher) Serve(ctx context.Context) error {
	s.refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *SnapshotRefresher) refresh(ctx context.Context) {
	if err := s.rec.Trending().Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn().Err(err).Msg("trending snapshot refresh failed")
	}
}

func (s *SnapshotRefresher) String() string { return "trending-refresher" }
