package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/sessions"
)

// SessionIdentifier resolves the session id of a request, issuing one if needed.
type SessionIdentifier interface {
	Identify(w http.ResponseWriter, r *http.Request) (string, error)
}

// SessionSweeper drops expired sessions.
type SessionSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Session returns middleware that attaches the caller's session id to the
// request context. Expired sessions are swept on every request entry, before
// the handler reads any session state.
func Session(identifier SessionIdentifier, sweeper SessionSweeper, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sweeper != nil {
				if _, err := sweeper.Sweep(r.Context()); err != nil {
					logger.Warn("Session sweep failed", zap.Error(err))
				}
			}

			id, err := identifier.Identify(w, r)
			if err != nil {
				logger.Error("Failed to identify session", zap.Error(err))
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(sessions.WithSessionID(r.Context(), id)))
		})
	}
}
