package rbac

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/flavalia/avalia/internal/auth"
)

// RequireAction returns middleware that checks the authenticated caller may
// perform action on the resource derived from the request. It suits rules
// that need no stored metadata beyond the path.
func RequireAction(engine *Evaluator, action Action, resource func(*http.Request) Resource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.GetIdentity(r.Context())
			if identity == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "authentication required",
				})
				return
			}

			if err := engine.Check(r.Context(), FromIdentity(identity), action, resource(r)); err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes the response for an error returned by Check:
// 400 for invalid operations, 403 for everything else.
func WriteError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalidOperation) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "invalid operation",
			"reason": reason(err),
		})
		return
	}
	writeJSON(w, http.StatusForbidden, map[string]string{
		"error":  "forbidden",
		"reason": reason(err),
	})
}

func reason(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrInvalidOperation, ErrForbidden} {
		if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
			return rest
		}
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
