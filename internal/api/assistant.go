package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cxy630/ai-subscription-butler/internal/core"
	"github.com/cxy630/ai-subscription-butler/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	*core.ResponseEnvelope
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	uc, err := h.store.BuildUserContext(userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to build user context")
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	envelope, err := h.assistant.Chat(r.Context(), sessionID, userID, req.Message, uc)
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("chat failed")
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	// Archival is best-effort: the user already has their answer.
	rec := store.ConversationRecord{
		UserID:     userID,
		SessionID:  sessionID,
		Message:    req.Message,
		Response:   envelope.Text,
		Intent:     string(envelope.Intent),
		Confidence: envelope.Confidence,
		Backend:    string(envelope.BackendUsed),
	}
	if err := h.store.SaveConversation(&rec); err != nil {
		h.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to archive conversation turn")
	}

	respondJSON(w, http.StatusOK, ChatResponse{SessionID: sessionID, ResponseEnvelope: envelope})
}

type InsightsResponse struct {
	Insights []core.Insight `json:"insights"`
}

func (h *APIHandler) InsightsHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	uc, err := h.store.BuildUserContext(userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to build user context")
		http.Error(w, "Failed to generate insights", http.StatusInternalServerError)
		return
	}

	insights := h.assistant.GenerateInsights(r.Context(), userID, uc)
	respondJSON(w, http.StatusOK, InsightsResponse{Insights: insights})
}

func (h *APIHandler) AssistantStatusHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.assistant.Status())
}

func (h *APIHandler) SessionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := h.store.GetSessionHistory(sessionID, userID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session history")
		http.Error(w, "Failed to load session history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []store.ConversationRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}
