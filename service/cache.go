package service

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
)

const (
	DefaultCacheTTL = 30 * time.Second
	cachePrefix     = "rec:"
)

// ResultCache 以 rec:{user}:{limit} 为 key 缓存推荐结果（JSON），写入行为时按用户失效。
type ResultCache struct {
	Store core.Store
	TTL   time.Duration
}

func userPrefix(userID string) string { return cachePrefix + userID + ":" }

func cacheKey(userID string, limit int) string {
	return userPrefix(userID) + strconv.Itoa(limit)
}

// Get 读取缓存；任何错误都视为未命中。
func (c *ResultCache) Get(ctx context.Context, userID string, limit int) (*Result, bool) {
	data, err := c.Store.Get(ctx, cacheKey(userID, limit))
	if err != nil {
		metrics.RecordCache(false)
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil || len(res.Items) == 0 {
		metrics.RecordCache(false)
		return nil, false
	}
	res.Cached = true
	metrics.RecordCache(true)
	return &res, true
}

// Set 写入缓存，失败忽略。
func (c *ResultCache) Set(ctx context.Context, userID string, limit int, res *Result) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	secs := int(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	_ = c.Store.Set(ctx, cacheKey(userID, limit), data, secs)
}

// Invalidate 删除该用户所有 limit 的缓存。
func (c *ResultCache) Invalidate(ctx context.Context, userID string) error {
	return c.Store.DeletePrefix(ctx, userPrefix(userID))
}
