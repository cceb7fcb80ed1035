package handlers

import (
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/service"
)

type KnowledgeHandler struct {
	svc *service.KnowledgeService
}

func NewKnowledgeHandler(svc *service.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

type queryResponse struct {
	Items []domain.KnowledgeItem `json:"items"`
	Count int                    `json:"count"`
}

// Query handles GET /v1/knowledge?q=&limit=
func (h *KnowledgeHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	items, err := h.svc.Query(r.Context(), q, limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if items == nil {
		items = []domain.KnowledgeItem{}
	}

	writeJSON(w, http.StatusOK, queryResponse{Items: items, Count: len(items)})
}

// Stats handles GET /v1/knowledge/stats
func (h *KnowledgeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Export handles GET /v1/admin/knowledge/export
func (h *KnowledgeHandler) Export(w http.ResponseWriter, r *http.Request) {
	export, err := h.svc.Export(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="knowledge.json"`)
	writeJSON(w, http.StatusOK, export)
}

// Import handles POST /v1/admin/knowledge/import
func (h *KnowledgeHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req domain.KnowledgeExport
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Import(r.Context(), &req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Consolidate handles POST /v1/admin/knowledge/consolidate
func (h *KnowledgeHandler) Consolidate(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Consolidate(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Prune handles POST /v1/admin/knowledge/prune
func (h *KnowledgeHandler) Prune(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Prune(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"pruned": n})
}
