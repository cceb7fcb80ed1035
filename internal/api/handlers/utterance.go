package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/service"
)

type UtteranceHandler struct {
	svc *service.PipelineService
}

func NewUtteranceHandler(svc *service.PipelineService) *UtteranceHandler {
	return &UtteranceHandler{svc: svc}
}

// Handle handles POST /v1/utterances
func (h *UtteranceHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req domain.Utterance
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.HandleUtterance(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type feedbackRequest struct {
	Score *float64 `json:"score"`
}

// Feedback handles POST /v1/feedback
func (h *UtteranceHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Score == nil {
		writeError(w, http.StatusBadRequest, "score is required")
		return
	}

	if err := h.svc.RecordFeedback(*req.Score); err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}
