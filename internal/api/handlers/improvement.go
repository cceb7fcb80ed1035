package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ImprovementHandler struct {
	svc *service.ImprovementService
}

func NewImprovementHandler(svc *service.ImprovementService) *ImprovementHandler {
	return &ImprovementHandler{svc: svc}
}

// Run handles POST /v1/admin/improve
func (h *ImprovementHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.RunCycle(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type proposalsResponse struct {
	Proposals []domain.ModificationProposal `json:"proposals"`
	Count     int                           `json:"count"`
}

// List handles GET /v1/admin/proposals?status=
func (h *ImprovementHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.ProposalStatus(r.URL.Query().Get("status"))
	proposals, err := h.svc.List(r.Context(), status)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if proposals == nil {
		proposals = []domain.ModificationProposal{}
	}
	writeJSON(w, http.StatusOK, proposalsResponse{Proposals: proposals, Count: len(proposals)})
}

// Apply handles POST /v1/admin/proposals/{id}/apply
func (h *ImprovementHandler) Apply(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return
	}

	result, err := h.svc.Apply(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type rollbackRequest struct {
	Reason string `json:"reason"`
}

type rollbackResponse struct {
	RolledBack []uuid.UUID `json:"rolled_back"`
}

// Rollback handles POST /v1/admin/proposals/{id}/rollback
func (h *ImprovementHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return
	}

	// The body is optional.
	var req rollbackRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "owner request"
	}

	ids, err := h.svc.Rollback(r.Context(), id, req.Reason)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rollbackResponse{RolledBack: ids})
}
