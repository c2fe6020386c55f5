package store

import (
	"context"
	"testing"
	"time"

	"github.com/rushteam/hybridrec/core"
)

func TestMemoryStore_GetSetDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_ = s.Set(ctx, "rec:u1:10", []byte("a"))
	_ = s.Set(ctx, "rec:u1:20", []byte("b"))
	_ = s.Set(ctx, "rec:u2:10", []byte("c"))

	if err := s.DeletePrefix(ctx, "rec:u1:"); err != nil {
		t.Fatalf("DeletePrefix 失败: %v", err)
	}
	if _, err := s.Get(ctx, "rec:u1:10"); !core.IsStoreNotFound(err) {
		t.Errorf("期望 NOT_FOUND，实际 %v", err)
	}
	v, err := s.Get(ctx, "rec:u2:10")
	if err != nil || string(v) != "c" {
		t.Errorf("其他用户的 key 不应被删除: %q %v", v, err)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_ = s.Set(ctx, "k", []byte("v"), 1)
	s.data["k"].expire = time.Now().Add(-time.Second)
	if _, err := s.Get(ctx, "k"); !core.IsStoreNotFound(err) {
		t.Errorf("过期 key 应返回 NOT_FOUND，实际 %v", err)
	}
}

func TestMemoryStore_ZRangeDescending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_ = s.ZAdd(ctx, "trending", 1, "p1")
	_ = s.ZAdd(ctx, "trending", 3, "p3")
	_ = s.ZAdd(ctx, "trending", 2, "p2")
	_ = s.ZAdd(ctx, "trending", 2, "p0")

	got, err := s.ZRange(ctx, "trending", 0, -1)
	if err != nil {
		t.Fatalf("ZRange 失败: %v", err)
	}
	want := []string{"p3", "p0", "p2", "p1"}
	if len(got) != len(want) {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("期望 %v，实际 %v", want, got)
		}
	}

	top, _ := s.ZRange(ctx, "trending", 0, 1)
	if len(top) != 2 || top[0] != "p3" {
		t.Errorf("截断结果错误: %v", top)
	}

	if score, err := s.ZScore(ctx, "trending", "p3"); err != nil || score != 3 {
		t.Errorf("ZScore 错误: %v %v", score, err)
	}
}

func TestMemoryStore_Hash(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_ = s.HSet(ctx, "h", "p1", []byte("shoes"))
	all, err := s.HGetAll(ctx, "h")
	if err != nil || string(all["p1"]) != "shoes" {
		t.Fatalf("HGetAll 错误: %v %v", all, err)
	}
	_ = s.Delete(ctx, "h")
	all, _ = s.HGetAll(ctx, "h")
	if len(all) != 0 {
		t.Errorf("Delete 后 hash 应为空: %v", all)
	}
}
