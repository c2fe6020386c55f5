// Package store 提供 core.InteractionStore 与 core.KeyValueStore 的实现。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
//	var events core.InteractionStore = store.NewMemoryInteractionStore()
//	var kv core.KeyValueStore = store.NewMemoryStore()
package store

import "github.com/rushteam/hybridrec/core"

// ErrNotFound 是 core.ErrStoreNotFound 的别名，方便本包内使用。
var ErrNotFound = core.ErrStoreNotFound

var (
	_ core.KeyValueStore    = (*MemoryStore)(nil)
	_ core.KeyValueStore    = (*RedisStore)(nil)
	_ core.InteractionStore = (*MemoryInteractionStore)(nil)
	_ core.InteractionStore = (*SQLInteractionStore)(nil)
)
