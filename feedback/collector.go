// Package feedback 把用户行为和曝光事件异步投递到下游（离线训练、实时统计）。
//
// 投递是尽力而为的：Record 不阻塞、不因下游故障返回错误，
// 行为写入的成败只由 InteractionStore 决定。
package feedback

import (
	"context"
	"time"

	"github.com/rushteam/hybridrec/core"
)

// EventKind 事件类型。
type EventKind string

const (
	EventInteraction EventKind = "interaction" // 一条已落库的用户行为
	EventImpression  EventKind = "impression"  // 一次推荐曝光
)

// Event 反馈事件（轻量级，只包含必要信息）。
type Event struct {
	Kind      EventKind `json:"kind"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Type      string    `json:"type,omitempty"` // 行为类型，仅 interaction
	Category  string    `json:"category,omitempty"`
	Query     string    `json:"query,omitempty"`
	Strategy  string    `json:"strategy,omitempty"` // 仅 impression
	Position  int       `json:"position,omitempty"` // 曝光位置，从 1 开始
	Score     float64   `json:"score,omitempty"`
	Sources   []string  `json:"sources,omitempty"`
	Timestamp int64     `json:"timestamp"` // Unix 毫秒
}

// InteractionEvent 由一条行为构造事件。
func InteractionEvent(in *core.Interaction) Event {
	ts := in.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return Event{
		Kind:      EventInteraction,
		UserID:    in.UserID,
		ProductID: in.ProductID,
		Type:      string(in.Type),
		Category:  in.Category,
		Query:     in.Query,
		Timestamp: ts.UnixMilli(),
	}
}

// ImpressionEvents 由一次推荐结果构造曝光事件。
func ImpressionEvents(userID, strategy string, items []core.RecommendationItem, now time.Time) []Event {
	out := make([]Event, 0, len(items))
	for _, it := range items {
		out = append(out, Event{
			Kind:      EventImpression,
			UserID:    userID,
			ProductID: it.ProductID,
			Category:  it.Category,
			Strategy:  strategy,
			Position:  it.Rank,
			Score:     it.CombinedScore,
			Sources:   it.Sources,
			Timestamp: now.UnixMilli(),
		})
	}
	return out
}

// Collector 反馈收集器接口（异步非阻塞）。
type Collector interface {
	// Record 缓冲事件，不等待下游确认
	Record(ctx context.Context, events ...Event) error

	// Close 优雅关闭（等待缓冲数据发送完成）
	Close() error
}

// NopCollector 丢弃所有事件，未配置下游时使用。
type NopCollector struct{}

func (NopCollector) Record(context.Context, ...Event) error { return nil }
func (NopCollector) Close() error                          { return nil }
