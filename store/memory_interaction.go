package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/hybridrec/core"
)

// MemoryInteractionStore 是内存实现的行为日志，按用户分桶保存。
// 只用于测试和单机演示；进程重启后数据丢失。
type MemoryInteractionStore struct {
	mu     sync.RWMutex
	nextID int64
	byUser map[string][]core.Interaction // 旧到新
	all    []core.Interaction            // 旧到新
	closed bool
	now    func() time.Time
}

func NewMemoryInteractionStore() *MemoryInteractionStore {
	return &MemoryInteractionStore{
		byUser: make(map[string][]core.Interaction),
		now:    time.Now,
	}
}

func (m *MemoryInteractionStore) Append(_ context.Context, in *core.Interaction) error {
	if err := core.ValidateInteraction(in); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrStoreUnavailable.With("store closed")
	}

	m.nextID++
	rec := *in
	rec.ID = m.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	in.ID, in.CreatedAt = rec.ID, rec.CreatedAt

	m.byUser[rec.UserID] = append(m.byUser[rec.UserID], rec)
	m.all = append(m.all, rec)
	return nil
}

func (m *MemoryInteractionStore) QueryByUser(_ context.Context, userID string, opts core.QueryOptions) ([]core.Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, core.ErrStoreUnavailable.With("store closed")
	}
	return newestFirst(m.byUser[userID], opts.Since, opts.Limit), nil
}

func (m *MemoryInteractionStore) CountByUser(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, core.ErrStoreUnavailable.With("store closed")
	}
	return len(m.byUser[userID]), nil
}

func (m *MemoryInteractionStore) RecentUsers(_ context.Context, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, core.ErrStoreUnavailable.With("store closed")
	}

	type lastSeen struct {
		user string
		at   time.Time
		id   int64
	}
	users := make([]lastSeen, 0, len(m.byUser))
	for u, list := range m.byUser {
		last := list[0]
		for _, in := range list[1:] {
			if in.CreatedAt.After(last.CreatedAt) || (in.CreatedAt.Equal(last.CreatedAt) && in.ID > last.ID) {
				last = in
			}
		}
		users = append(users, lastSeen{user: u, at: last.CreatedAt, id: last.ID})
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].at.Equal(users[j].at) {
			return users[i].at.After(users[j].at)
		}
		return users[i].id > users[j].id
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.user
	}
	return out, nil
}

func (m *MemoryInteractionStore) QuerySince(_ context.Context, since time.Time, limit int) ([]core.Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, core.ErrStoreUnavailable.With("store closed")
	}
	return newestFirst(m.all, since, limit), nil
}

func (m *MemoryInteractionStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// newestFirst 从旧到新的切片中倒序取出 since 之后的记录（含 since）。
// 同一时间戳按写入顺序倒序。
func newestFirst(list []core.Interaction, since time.Time, limit int) []core.Interaction {
	out := make([]core.Interaction, 0)
	for i := len(list) - 1; i >= 0; i-- {
		if !since.IsZero() && list[i].CreatedAt.Before(since) {
			continue
		}
		out = append(out, list[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
