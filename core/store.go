package core

import "context"

// Store 是通用 KV 存储的领域接口。
//
// 使用场景：
//   - 推荐结果短 TTL 缓存（按用户失效）
//   - 热门榜快照（last-known-good）
//
// 实现：
//   - store.MemoryStore
//   - store.RedisStore
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key；不存在返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，ttl 单位秒
	Set(ctx context.Context, key string, value []byte, ttl ...int) error

	Delete(ctx context.Context, key string) error

	// DeletePrefix 删除所有以 prefix 开头的 key（按用户失效缓存）
	DeletePrefix(ctx context.Context, prefix string) error

	Close() error
}

// KeyValueStore 是 Store 的扩展接口，支持有序集合与哈希。
// 如果后端不支持某些操作，可返回 ErrStoreNotSupported。
type KeyValueStore interface {
	Store

	// ZAdd 向有序集合添加成员
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRange 按分数降序取 [start, stop] 区间的成员
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ZScore 获取成员的分数
	ZScore(ctx context.Context, key string, member string) (float64, error)

	// HSet 写入 Hash 字段
	HSet(ctx context.Context, key, field string, value []byte) error

	// HGetAll 读取整个 Hash
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
}
