package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/calebwray/vaultgate/internal/models"
	pkghttp "github.com/calebwray/vaultgate/pkg/http"
)

type contextKey string

const usernameKey contextKey = "session_username"

// SessionResolver resolves a bearer token to the active session.
type SessionResolver interface {
	Authenticate(ctx context.Context, token string) (*models.Session, error)
}

// SessionAuth guards management endpoints: the request must carry the
// active session's bearer token, and the session's username is placed
// in the request context.
func SessionAuth(sessions SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				pkghttp.WriteUnauthorized(w, "missing bearer token")
				return
			}

			session, err := sessions.Authenticate(r.Context(), token)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), usernameKey, session.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUsername returns a context carrying the session username, as
// SessionAuth would install it.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// UsernameFromContext returns the authenticated session's username.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok
}
