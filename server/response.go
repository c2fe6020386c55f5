package server

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/logging"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("encode response failed")
	}
}

// statusOf 把领域错误映射为 HTTP 状态码。
func statusOf(err error) int {
	de := core.GetDomainError(err)
	if de == nil {
		return http.StatusInternalServerError
	}
	switch de.Code {
	case core.ErrorCodeInvalidInteraction, core.ErrorCodeInvalidRequest:
		return http.StatusBadRequest
	case core.ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case core.ErrorCodeStoreUnavailable, core.ErrorCodeCatalogUnavailable:
		return http.StatusServiceUnavailable
	case core.ErrorCodeNoCandidates, core.ErrorCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	resp := errorResponse{Success: false, Error: err.Error()}
	if de := core.GetDomainError(err); de != nil {
		resp.Code = de.Code
	}
	if status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("request failed")
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	writeJSON(w, status, resp)
}
