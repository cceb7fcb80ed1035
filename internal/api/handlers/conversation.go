package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/ranger/internal/service"
	"github.com/go-chi/chi/v5"
)

type ConversationHandler struct {
	svc *service.ConversationService
}

func NewConversationHandler(svc *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// Stats handles GET /v1/conversations
func (h *ConversationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

// Channel handles GET /v1/conversations/{channel}
func (h *ConversationHandler) Channel(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	ctx, ok := h.svc.Context(channel)
	if !ok {
		writeError(w, http.StatusNotFound, "no conversation in channel "+channel)
		return
	}
	writeJSON(w, http.StatusOK, ctx)
}

// UserPatterns handles GET /v1/users/{id}/patterns
func (h *ConversationHandler) UserPatterns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.svc.UserPatterns(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no messages from user "+id)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
