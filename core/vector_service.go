package core

import "context"

// CatalogService 是商品目录 / 向量检索服务的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（vector）实现
//   - 只暴露推荐链路需要的两个能力：近邻检索与商品元数据
//   - 任何不可用（网络、超时、熔断）都返回 CatalogUnavailable，由调用方降级
//
// 实现：
//   - vector.QdrantCatalog（Qdrant REST）
//   - vector.BreakerCatalog（熔断包装）
//   - vector.MemoryCatalog（测试/开发）
type CatalogService interface {
	// NearestNeighbors 返回与 vector 最相似的 k 个商品（按相似度降序）
	NearestNeighbors(ctx context.Context, vector []float64, k int) ([]Neighbor, error)

	// FetchProduct 获取商品元数据（含向量）；不存在返回 NOT_FOUND
	FetchProduct(ctx context.Context, id string) (*Product, error)
}

// Neighbor 是一次近邻检索的结果项。Category 来自检索结果的 payload，可为空。
type Neighbor struct {
	ProductID string
	Score     float64
	Category  string
}

// Product 是商品元数据。价格只用于展示。
type Product struct {
	ID       string
	Name     string
	Category string
	Brand    string
	Price    float64
	Currency string
	Rating   float64
	Vector   []float64
}

// ErrProductNotFound 表示目录中没有该商品。
var ErrProductNotFound = NewDomainError(ModuleCatalog, ErrorCodeNotFound, "catalog: product not found")
