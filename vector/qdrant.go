// Package vector 提供 core.CatalogService 的实现（商品目录与向量近邻检索）。
package vector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rushteam/hybridrec/core"
)

// QdrantCatalog 通过 Qdrant REST 接口实现 CatalogService。
//
// 请求：
//
//	POST {url}/collections/{collection}/points/search  {"vector": [...], "limit": k, "with_payload": true}
//	POST {url}/collections/{collection}/points         {"ids": [...], "with_payload": true, "with_vector": true}
//
// 商品 ID 不是 UUID/整数时，用 UUIDv5 映射为 point ID，payload 中保存原始商品 ID。
// 所有失败（网络、超时、非 2xx、解码）都返回 CatalogUnavailable。
type QdrantCatalog struct {
	URL        string
	APIKey     string
	Collection string
	VectorName string // 命名向量，为空表示默认向量
	Timeout    time.Duration
	Client     *http.Client
}

type QdrantOption func(*QdrantCatalog)

func WithQdrantAPIKey(key string) QdrantOption {
	return func(q *QdrantCatalog) { q.APIKey = key }
}

func WithQdrantVectorName(name string) QdrantOption {
	return func(q *QdrantCatalog) { q.VectorName = name }
}

func WithQdrantTimeout(d time.Duration) QdrantOption {
	return func(q *QdrantCatalog) { q.Timeout = d }
}

func WithQdrantHTTPClient(c *http.Client) QdrantOption {
	return func(q *QdrantCatalog) { q.Client = c }
}

func NewQdrantCatalog(url, collection string, opts ...QdrantOption) *QdrantCatalog {
	q := &QdrantCatalog{
		URL:        strings.TrimRight(url, "/"),
		Collection: collection,
		Timeout:    3 * time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.Client == nil {
		q.Client = &http.Client{Timeout: q.Timeout}
	}
	return q
}

// PointID 把商品 ID 转成 Qdrant point ID。
func PointID(productID string) any {
	if n, err := strconv.ParseUint(productID, 10, 64); err == nil {
		return n
	}
	if u, err := uuid.Parse(productID); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(productID)).String()
}

type qdrantPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
	Vector  json.RawMessage `json:"vector"`
}

type qdrantResponse struct {
	Result []qdrantPoint `json:"result"`
	Status any           `json:"status"`
}

func (q *QdrantCatalog) NearestNeighbors(ctx context.Context, vector []float64, k int) ([]core.Neighbor, error) {
	if k <= 0 || len(vector) == 0 {
		return []core.Neighbor{}, nil
	}
	body := map[string]any{
		"limit":        k,
		"with_payload": true,
	}
	if q.VectorName != "" {
		body["vector"] = map[string]any{"name": q.VectorName, "vector": vector}
	} else {
		body["vector"] = vector
	}

	resp, err := q.post(ctx, "/collections/"+q.Collection+"/points/search", body)
	if err != nil {
		return nil, err
	}
	out := make([]core.Neighbor, 0, len(resp.Result))
	for _, p := range resp.Result {
		out = append(out, core.Neighbor{ProductID: productIDOf(p), Score: p.Score, Category: payloadString(p.Payload, "category")})
	}
	return out, nil
}

func (q *QdrantCatalog) FetchProduct(ctx context.Context, id string) (*core.Product, error) {
	body := map[string]any{
		"ids":          []any{PointID(id)},
		"with_payload": true,
		"with_vector":  true,
	}
	resp, err := q.post(ctx, "/collections/"+q.Collection+"/points", body)
	if err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, core.ErrProductNotFound.With(id)
	}
	p := resp.Result[0]
	vec, err := q.decodeVector(p.Vector)
	if err != nil {
		return nil, core.ErrCatalogUnavailable.Wrap(err)
	}
	product := productFromPayload(id, p.Payload)
	product.Vector = vec
	return product, nil
}

func (q *QdrantCatalog) post(ctx context.Context, path string, body any) (*qdrantResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, core.ErrCatalogUnavailable.Wrap(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.URL+path, bytes.NewReader(data))
	if err != nil {
		return nil, core.ErrCatalogUnavailable.Wrap(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if q.APIKey != "" {
		req.Header.Set("api-key", q.APIKey)
	}

	resp, err := q.Client.Do(req)
	if err != nil {
		return nil, core.ErrCatalogUnavailable.Wrap(fmt.Errorf("qdrant call: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, core.ErrCatalogUnavailable.Wrap(fmt.Errorf("qdrant error: status=%d, body=%s", resp.StatusCode, string(msg)))
	}

	var out qdrantResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, core.ErrCatalogUnavailable.Wrap(fmt.Errorf("decode response: %w", err))
	}
	return &out, nil
}

// decodeVector 兼容默认向量（数组）和命名向量（对象）。
func (q *QdrantCatalog) decodeVector(raw json.RawMessage) ([]float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var v []float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	var named map[string][]float64
	if err := json.Unmarshal(raw, &named); err != nil {
		return nil, err
	}
	if q.VectorName != "" {
		return named[q.VectorName], nil
	}
	for _, v := range named {
		return v, nil
	}
	return nil, nil
}

func productIDOf(p qdrantPoint) string {
	for _, key := range []string{"product_id", "id"} {
		if v := payloadString(p.Payload, key); v != "" {
			return v
		}
	}
	var s string
	if err := json.Unmarshal(p.ID, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(p.ID))
}

func productFromPayload(id string, payload map[string]any) *core.Product {
	name := payloadString(payload, "name")
	if name == "" {
		name = payloadString(payload, "title")
	}
	price := payloadFloat(payload, "price")
	if price == 0 {
		price = payloadFloat(payload, "final_price")
	}
	currency := payloadString(payload, "currency")
	if currency == "" {
		currency = "USD"
	}
	rating := payloadFloat(payload, "rating")
	if rating > 5 {
		rating = 5
	}
	return &core.Product{
		ID:       id,
		Name:     name,
		Category: payloadString(payload, "category"),
		Brand:    payloadString(payload, "brand"),
		Price:    price,
		Currency: currency,
		Rating:   rating,
	}
}

func payloadString(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func payloadFloat(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
