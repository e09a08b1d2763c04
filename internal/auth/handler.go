package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Handler handles authentication HTTP endpoints.
type Handler struct {
	verifier *Verifier
	dir      Directory
}

func NewHandler(verifier *Verifier, dir Directory) *Handler {
	return &Handler{verifier: verifier, dir: dir}
}

// RegisterRoutes registers the public auth routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/login", h.HandleLogin)
}

// RegisterProtectedRoutes registers routes that need an authenticated caller.
func (h *Handler) RegisterProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/auth/me", h.HandleMe)
}

// HandleLogin exchanges a login name and password for an access token.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)

	var req struct {
		LoginName string `json:"login_name"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.LoginName == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "login_name and password are required"})
		return
	}

	result, err := h.verifier.Login(r.Context(), req.LoginName, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		slog.ErrorContext(r.Context(), "login failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleMe returns the caller's stored profile.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	p, err := h.dir.ByID(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		slog.ErrorContext(r.Context(), "loading profile failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "loading profile failed"})
		return
	}

	subjects, err := h.dir.TeachesSubjects(r.Context(), p.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "loading subjects failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "loading profile failed"})
		return
	}
	if subjects == nil {
		subjects = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"principal": p,
		"subjects":  subjects,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
