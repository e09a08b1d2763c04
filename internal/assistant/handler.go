package assistant

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/rbac"
)

// Handler serves the assistant endpoints to teachers and administrators.
type Handler struct {
	service *Service
	engine  *rbac.Evaluator
}

func NewHandler(service *Service, engine *rbac.Evaluator) *Handler {
	return &Handler{service: service, engine: engine}
}

// RegisterRoutes registers assistant routes on an authenticated mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	use := rbac.RequireAction(h.engine, rbac.ActionUse, func(*http.Request) rbac.Resource {
		return rbac.AssistantRef{}
	})
	mux.Handle("POST /api/v1/assistant/chat", use(http.HandlerFunc(h.HandleChat)))
	mux.Handle("GET /api/v1/assistant/health", use(http.HandlerFunc(h.HandleHealth)))
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var userID int64
	if identity := auth.GetIdentity(r.Context()); identity != nil {
		userID = identity.UserID
	}

	reply, err := h.service.Chat(r.Context(), req.Message)
	switch {
	case err == nil:
	case errors.Is(err, ErrEmptyMessage):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, ErrUpstream):
		slog.WarnContext(r.Context(), "assistant provider failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "assistant provider failed"})
		return
	default:
		slog.ErrorContext(r.Context(), "assistant chat failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	slog.InfoContext(r.Context(), "assistant reply generated",
		"user_id", userID,
		"message_chars", len(req.Message),
		"reply_chars", len(reply),
	)
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

// HandleHealth reports whether the assistant is configured and which model
// it uses.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "disabled"
	if h.service.Enabled() {
		status = "online"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"service": "assistant",
		"model":   h.service.Model(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
