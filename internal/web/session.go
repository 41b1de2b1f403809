package web

import (
	"context"
	"net/http"
)

const (
	// SessionHeader carries the caller's conversation id.
	SessionHeader = "X-Session-Id"

	// DefaultSessionID is used when a request carries no session header.
	DefaultSessionID = "default"

	// MaxSessionIDLength bounds the session header in bytes.
	MaxSessionIDLength = 256
)

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey int

const (
	sessionIDKey contextKey = iota
	requestIDKey
)

// GetSessionID retrieves the session ID from the request context.
// Returns an empty string if no session ID exists in the context.
func GetSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// setSessionID stores the session ID in the context.
func setSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionMiddleware ensures every request has a session ID.
// The ID is read from the X-Session-Id header and falls back to
// DefaultSessionID. Oversized IDs are rejected with 400.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(SessionHeader)
		if sessionID == "" {
			sessionID = DefaultSessionID
		}

		if len(sessionID) > MaxSessionIDLength {
			writeError(w, http.StatusBadRequest, "Session id is too long")
			return
		}

		ctx := setSessionID(r.Context(), sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
