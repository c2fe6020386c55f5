package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/service"
)

var validate = validator.New()

type recommendationsResponse struct {
	Success         bool                      `json:"success"`
	Count           int                       `json:"count"`
	Recommendations []core.RecommendationItem `json:"recommendations"`
	Strategy        string                    `json:"strategy"`
}

// trackRequest 是 POST /track/{type} 的请求体。
type trackRequest struct {
	ProductID string         `json:"product_id" validate:"required,max=128"`
	Metadata  *trackMetadata `json:"metadata,omitempty"`
}

type trackMetadata struct {
	Query    string `json:"query" validate:"max=512"`
	Category string `json:"category" validate:"max=128"`
}

type interactionView struct {
	ProductID string `json:"product_id"`
	Type      string `json:"interaction_type"`
	Query     string `json:"search_query,omitempty"`
	Category  string `json:"category,omitempty"`
	CreatedAt string `json:"created_at"`
}

// parseLimit 读取 limit 参数；缺省为 def，非整数返回 InvalidRequest。
func parseLimit(r *http.Request, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.ErrInvalidRequest.With("limit must be an integer")
	}
	return n, nil
}

// userFromQuery 读取 user（兼容 user_email）。
func userFromQuery(r *http.Request) string {
	q := r.URL.Query()
	if u := strings.TrimSpace(q.Get("user")); u != "" {
		return u
	}
	return strings.TrimSpace(q.Get("user_email"))
}

// resolveUser 优先使用路径/查询参数，其次使用可选的 bearer 身份；都没有时为匿名。
func (s *Server) resolveUser(r *http.Request) string {
	if u := strings.TrimSpace(chi.URLParam(r, "user")); u != "" {
		return u
	}
	if u := userFromQuery(r); u != "" {
		return u
	}
	if s.auth != nil && bearerToken(r) != "" {
		if u, err := s.auth.Authenticate(r); err == nil {
			return u
		}
	}
	return ""
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, service.DefaultLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.rec.GetRecommendations(r.Context(), s.resolveUser(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{
		Success:         true,
		Count:           len(res.Items),
		Recommendations: res.Items,
		Strategy:        res.Strategy,
	})
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	info, err := s.rec.DebugSnapshot(r.Context(), s.resolveUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// splitIDs 解析逗号分隔的商品 ID。
func splitIDs(csv string) []string {
	var out []string
	for _, id := range strings.Split(csv, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// handleBySeed 购物车、收藏中的种子权重高于普通商品。
func (s *Server) handleBySeed(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, service.DefaultLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	seeds := make(map[string]float64)
	add := func(csv string, weight float64) {
		for _, id := range splitIDs(csv) {
			if weight > seeds[id] {
				seeds[id] = weight
			}
		}
	}
	add(q.Get("product_ids"), core.InteractionClick.Weight())
	add(q.Get("wishlist_ids"), core.InteractionWishlist.Weight())
	add(q.Get("cart_ids"), core.InteractionAddToCart.Weight())

	res, err := s.rec.RecommendBySeed(r.Context(), seeds, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{
		Success:         true,
		Count:           len(res.Items),
		Recommendations: res.Items,
		Strategy:        res.Strategy,
	})
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req trackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, r, core.ErrInvalidInteraction.With("malformed body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, core.ErrInvalidInteraction.With(err.Error()))
		return
	}

	var opts []service.CaptureOption
	if req.Metadata != nil {
		opts = append(opts, service.WithQuery(req.Metadata.Query), service.WithCategory(req.Metadata.Category))
	}

	if _, err := s.rec.CaptureInteraction(r.Context(), userID, req.ProductID, chi.URLParam(r, "type"), opts...); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseLimit(r, 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.rec.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]interactionView, 0, len(list))
	for _, in := range list {
		views = append(views, interactionView{
			ProductID: in.ProductID,
			Type:      string(in.Type),
			Query:     in.Query,
			Category:  in.Category,
			CreatedAt: in.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"user_id":      userID,
		"count":        len(views),
		"interactions": views,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.rec.Store().CountByUser(r.Context(), "__healthz__"); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "store": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) authenticate(r *http.Request) (string, error) {
	if s.auth == nil {
		return "", core.ErrUnauthorized.With("authentication is not configured")
	}
	return s.auth.Authenticate(r)
}
