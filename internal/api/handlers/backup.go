package handlers

import (
	"net/http"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type BackupHandler struct {
	svc *service.ModifierService
}

func NewBackupHandler(svc *service.ModifierService) *BackupHandler {
	return &BackupHandler{svc: svc}
}

type backupsResponse struct {
	Backups []domain.Backup `json:"backups"`
	Count   int             `json:"count"`
}

// List handles GET /v1/admin/backups?target=
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.svc.ListBackups(r.Context(), r.URL.Query().Get("target"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if backups == nil {
		backups = []domain.Backup{}
	}
	writeJSON(w, http.StatusOK, backupsResponse{Backups: backups, Count: len(backups)})
}

type createBackupRequest struct {
	Target string `json:"target"`
}

// Create handles POST /v1/admin/backups
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBackupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Target == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	b, err := h.svc.CreateBackup(r.Context(), req.Target)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// Restore handles POST /v1/admin/backups/{id}/restore
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid backup id")
		return
	}

	b, err := h.svc.RestoreBackup(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type pruneBackupsRequest struct {
	OlderThan string `json:"older_than"`
}

// Prune handles POST /v1/admin/backups/prune
func (h *BackupHandler) Prune(w http.ResponseWriter, r *http.Request) {
	var req pruneBackupsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	age, err := time.ParseDuration(req.OlderThan)
	if err != nil {
		writeError(w, http.StatusBadRequest, "older_than must be a duration such as 720h")
		return
	}

	n, err := h.svc.PruneBackups(r.Context(), age)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"pruned": n})
}
