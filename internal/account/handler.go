package account

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/rbac"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func callerPrincipal(r *http.Request) (rbac.Principal, bool) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		return rbac.Principal{}, false
	}
	return rbac.FromIdentity(identity), true
}

// writeError maps store, validation and authorization errors to responses.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, rbac.ErrForbidden), errors.Is(err, rbac.ErrInvalidOperation):
		rbac.WriteError(w, err)
	case errors.Is(err, ErrPrincipalNotFound), errors.Is(err, ErrSubjectNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrLoginTaken), errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrSubjectNameTaken), errors.Is(err, ErrPrincipalInUse):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrEmailInvalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.ErrorContext(r.Context(), fallback, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fallback})
	}
}
