package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/rushteam/hybridrec/core"
)

// MemoryCatalog 是内存实现的 CatalogService，用于测试/开发。
// 近邻检索为暴力余弦相似度；SetDown(true) 模拟目录不可用。
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]*core.Product
	down     bool
}

func NewMemoryCatalog(products ...*core.Product) *MemoryCatalog {
	m := &MemoryCatalog{products: make(map[string]*core.Product)}
	for _, p := range products {
		m.Put(p)
	}
	return m
}

// Put 插入或覆盖商品。
func (m *MemoryCatalog) Put(p *core.Product) {
	if p == nil || p.ID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.Vector = append([]float64(nil), p.Vector...)
	m.products[p.ID] = &cp
}

func (m *MemoryCatalog) SetDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

func (m *MemoryCatalog) NearestNeighbors(ctx context.Context, vector []float64, k int) ([]core.Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down {
		return nil, core.ErrCatalogUnavailable.With("memory catalog down")
	}
	if err := ctx.Err(); err != nil {
		return nil, core.ErrCatalogUnavailable.Wrap(err)
	}
	if k <= 0 || len(vector) == 0 {
		return []core.Neighbor{}, nil
	}

	out := make([]core.Neighbor, 0, len(m.products))
	for id, p := range m.products {
		if len(p.Vector) != len(vector) {
			continue
		}
		out = append(out, core.Neighbor{ProductID: id, Score: cosineSimilarity(vector, p.Vector), Category: p.Category})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *MemoryCatalog) FetchProduct(ctx context.Context, id string) (*core.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down {
		return nil, core.ErrCatalogUnavailable.With("memory catalog down")
	}
	if err := ctx.Err(); err != nil {
		return nil, core.ErrCatalogUnavailable.Wrap(err)
	}
	p, ok := m.products[id]
	if !ok {
		return nil, core.ErrProductNotFound.With(id)
	}
	cp := *p
	cp.Vector = append([]float64(nil), p.Vector...)
	return &cp, nil
}

// cosineSimilarity 计算余弦相似度
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var (
	_ core.CatalogService = (*MemoryCatalog)(nil)
	_ core.CatalogService = (*QdrantCatalog)(nil)
	_ core.CatalogService = (*BreakerCatalog)(nil)
)
