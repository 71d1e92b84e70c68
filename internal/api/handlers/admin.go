package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maumercado/ptc/internal/logger"
	"github.com/maumercado/ptc/internal/ptc/coordinator"
	"github.com/maumercado/ptc/internal/ptc/deadletter"
	"github.com/maumercado/ptc/internal/ptc/store"
)

// AdminHandler handles the PTC operator admin API (spec §6/SPEC_FULL.md §4),
// generalized from the teacher's dlq/worker/queue-scoped AdminHandler onto
// the coordinator facade.
type AdminHandler struct {
	coord *coordinator.Coordinator
	store *store.Store
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(coord *coordinator.Coordinator, s *store.Store) *AdminHandler {
	return &AdminHandler{coord: coord, store: s}
}

// HealthCheck handles GET /admin/health.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DB().PingContext(r.Context()); err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"store":  "disconnected",
			"error":  err.Error(),
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"store":  "connected",
	})
}

// ListWorkers handles GET /admin/workers.
func (h *AdminHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.store.ListWorkers(store.ListWorkersFilter{})
	if err != nil {
		logger.Error().Err(err).Msg("failed to list workers")
		h.respondError(w, http.StatusInternalServerError, "failed to list workers")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"workers": workers,
		"count":   len(workers),
	})
}

// GetWorker handles GET /admin/workers/{workerID}.
func (h *AdminHandler) GetWorker(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerID")
	if workerID == "" {
		h.respondError(w, http.StatusBadRequest, "worker ID is required")
		return
	}

	wk, err := h.store.GetWorker(workerID)
	if err != nil {
		if errors.Is(err, store.ErrWorkerNotFound) {
			h.respondError(w, http.StatusNotFound, "worker not found")
			return
		}
		logger.Error().Err(err).Str("worker_id", workerID).Msg("failed to get worker")
		h.respondError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}

	h.respondJSON(w, http.StatusOK, wk)
}

// GetStatus handles GET /admin/status.
func (h *AdminHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.coord.GetStatus()
	if err != nil {
		logger.Error().Err(err).Msg("failed to get coordinator status")
		h.respondError(w, http.StatusInternalServerError, "failed to get status")
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

// ListDeadLetters handles GET /admin/dead-letters.
func (h *AdminHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	unresolvedOnly := r.URL.Query().Get("unresolved") == "true"
	entries, err := h.store.ListDeadLetters(store.ListDeadLettersFilter{UnresolvedOnly: unresolvedOnly, Limit: 100})
	if err != nil {
		logger.Error().Err(err).Msg("failed to list dead letters")
		h.respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"dead_letters": entries,
		"count":        len(entries),
	})
}

// RetryDeadLetter handles POST /admin/dead-letters/{id}/retry.
func (h *AdminHandler) RetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "dead letter ID is required")
		return
	}

	dl, err := h.store.GetDeadLetter(id)
	if err != nil {
		if errors.Is(err, store.ErrDeadLetterNotFound) {
			h.respondError(w, http.StatusNotFound, "dead letter not found")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "failed to get dead letter")
		return
	}
	if dl.Resolved {
		h.respondError(w, http.StatusConflict, "dead letter already resolved")
		return
	}

	retried, err := deadletter.New(h.store).Retry(id)
	if err != nil {
		logger.Error().Err(err).Str("dead_letter_id", id).Msg("failed to retry dead letter")
		h.respondError(w, http.StatusInternalServerError, "failed to retry dead letter")
		return
	}

	logger.Info().Str("dead_letter_id", id).Msg("dead letter retry requested via admin API")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "dead letter queued for retry",
		"dead_letter_id": id,
		"message_id":     retried.ID,
	})
}

// ResolveDeadLetterRequest is the body for POST /admin/dead-letters/{id}/resolve.
type ResolveDeadLetterRequest struct {
	Resolution string `json:"resolution"`
}

// ResolveDeadLetter handles POST /admin/dead-letters/{id}/resolve.
func (h *AdminHandler) ResolveDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "dead letter ID is required")
		return
	}

	var req ResolveDeadLetterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Resolution == "" {
		req.Resolution = string(store.ResolutionSkipped)
	}

	ok, err := h.store.ResolveDeadLetter(id, store.Resolution(req.Resolution))
	if err != nil {
		logger.Error().Err(err).Str("dead_letter_id", id).Msg("failed to resolve dead letter")
		h.respondError(w, http.StatusInternalServerError, "failed to resolve dead letter")
		return
	}
	if !ok {
		h.respondError(w, http.StatusNotFound, "dead letter not found or already resolved")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "dead letter resolved",
		"dead_letter_id": id,
	})
}

// GetStats handles GET /admin/stats.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	msgStats, err := h.store.GetStats()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to get message stats")
		return
	}
	workerStats, err := h.store.GetWorkerStats()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to get worker stats")
		return
	}
	dlStats, err := h.store.GetDeadLetterStats()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to get dead letter stats")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"messages":     msgStats,
		"workers":      workerStats,
		"dead_letters": dlStats,
	})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
