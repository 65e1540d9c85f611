package session

import (
	"net/http"
	"strings"

	"github.com/threedeality/storefront-api/internal/common"
)

// Middleware resolves the session token on incoming requests.
type Middleware struct {
	Tokens Tokens
}

// Resolve attaches the session id to the request context when a valid token
// is present. Invalid or absent tokens pass through without one; handlers
// that need a session enforce it via RequireSession.
func (m Middleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := extractToken(r); token != "" {
			if sessionID, err := m.Tokens.Parse(token); err == nil {
				r = r.WithContext(common.WithSessionID(r.Context(), sessionID))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSession rejects requests that carry no valid session token.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.SessionID(r.Context()); !ok {
			common.JSONError(w, http.StatusUnauthorized, "SESSION_REQUIRED", "missing or invalid session token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if cookie, err := r.Cookie("storefront_session"); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
