package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maumercado/ptc/internal/logger"
	"github.com/maumercado/ptc/internal/ptc/coordinator"
	"github.com/maumercado/ptc/internal/ptc/message"
	"github.com/maumercado/ptc/internal/ptc/store"
)

// MessageHandler handles message-related HTTP requests, adapted from the
// teacher's TaskHandler onto the PTC coordinator facade.
type MessageHandler struct {
	coord *coordinator.Coordinator
	store *store.Store
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(coord *coordinator.Coordinator, s *store.Store) *MessageHandler {
	return &MessageHandler{coord: coord, store: s}
}

// CreateMessageRequest is the body for POST /api/v1/messages.
type CreateMessageRequest struct {
	Type          string          `json:"type"`
	Sender        string          `json:"sender"`
	Recipient     string          `json:"recipient"`
	Payload       json.RawMessage `json:"payload"`
	Importance    string          `json:"importance"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// Create handles POST /api/v1/messages.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Type == "" {
		h.respondError(w, http.StatusBadRequest, "message type is required")
		return
	}
	if req.Recipient == "" {
		h.respondError(w, http.StatusBadRequest, "recipient is required")
		return
	}

	msg := h.coord.CreateMessage(
		req.Type,
		req.Sender,
		req.Recipient,
		req.Payload,
		message.ParseImportance(req.Importance),
		req.CorrelationID,
	)

	if err := h.coord.Send(r.Context(), msg); err != nil {
		logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to send message")
		h.respondError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	logger.Info().
		Str("message_id", msg.ID).
		Str("type", msg.Type).
		Str("importance", msg.ImportanceLabel).
		Msg("message sent")

	h.respondJSON(w, http.StatusCreated, msg)
}

// Get handles GET /api/v1/messages/{messageID}.
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	if messageID == "" {
		h.respondError(w, http.StatusBadRequest, "message ID is required")
		return
	}

	msg, err := h.store.Get(messageID)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			h.respondError(w, http.StatusNotFound, "message not found")
			return
		}
		logger.Error().Err(err).Str("message_id", messageID).Msg("failed to get message")
		h.respondError(w, http.StatusInternalServerError, "failed to get message")
		return
	}

	h.respondJSON(w, http.StatusOK, msg)
}

// AcknowledgeRequest is the body for POST /api/v1/messages/{messageID}/ack.
type AcknowledgeRequest struct {
	Recipient string `json:"recipient"`
}

// Acknowledge handles POST /api/v1/messages/{messageID}/ack.
func (h *MessageHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	if messageID == "" {
		h.respondError(w, http.StatusBadRequest, "message ID is required")
		return
	}

	var req AcknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Recipient == "" {
		h.respondError(w, http.StatusBadRequest, "recipient is required")
		return
	}

	if err := h.coord.Acknowledge(messageID, req.Recipient); err != nil {
		logger.Error().Err(err).Str("message_id", messageID).Msg("failed to acknowledge message")
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message_id": messageID,
		"status":     "acknowledged",
	})
}

// List handles GET /api/v1/messages.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100

	var (
		msgs []*message.Message
		err  error
	)
	switch {
	case q.Get("recipient") != "":
		msgs, err = h.store.GetByRecipient(q.Get("recipient"), limit)
	case q.Get("sender") != "":
		msgs, err = h.store.GetBySender(q.Get("sender"), limit)
	case q.Get("status") != "":
		msgs, err = h.store.GetByStatus(message.ParseStatus(q.Get("status")), limit)
	case q.Get("correlation_id") != "":
		msgs, err = h.store.GetByCorrelation(q.Get("correlation_id"))
	default:
		msgs, err = h.store.GetByStatus(message.StatusPending, limit)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to list messages")
		h.respondError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
	})
}

func (h *MessageHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *MessageHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
