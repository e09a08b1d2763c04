package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type identityContextKey struct{}

// WithIdentity returns a copy of ctx carrying identity. Used by the
// middleware and by tests that bypass it.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// GetIdentity retrieves the authenticated identity from the request context.
func GetIdentity(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey{}).(*Identity)
	return identity
}

// ExtractIdentity verifies the token carried in an Authorization header
// value. Missing, malformed, expired and forged tokens all yield
// ErrUnauthorized.
func ExtractIdentity(tokens *TokenService, header string) (*Identity, error) {
	token, ok := bearerToken(header)
	if !ok {
		return nil, ErrUnauthorized
	}
	identity, err := tokens.Verify(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return identity, nil
}

// Middleware returns HTTP middleware that rejects requests without a valid
// access token and stores the caller's identity in the request context.
func Middleware(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := ExtractIdentity(tokens, r.Header.Get("Authorization"))
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin rejects authenticated callers whose role is not ADMIN.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := GetIdentity(r.Context())
		if identity == nil {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !identity.IsAdmin() {
			writeAuthError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
