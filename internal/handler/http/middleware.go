package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

// sessionKey is the context key for the request's cart session.
const sessionKey contextKey = "cart_session"

const maxSessionIDLen = 128

// CartSession resolves the cart session named by the X-Session-ID header and
// applies the request's identity to it: a bearer token logs the session in,
// its absence logs it out. When the identity changes the request waits for
// the resulting load or merge so the handler sees the settled cart.
func CartSession(sessions *service.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(middleware.SessionIDHeader))
			if id == "" || len(id) > maxSessionIDLen {
				httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "X-Session-ID header is required"},
				})
				return
			}

			sess := sessions.Session(id)

			var changed bool
			if userID := middleware.UserIDFromContext(r.Context()); userID != "" {
				changed = sess.Login(userID)
			} else {
				changed = sess.Logout()
			}
			if changed {
				if err := sess.Flush(r.Context()); err != nil {
					logger.FromContext(r.Context()).WarnContext(r.Context(), "cart did not settle after identity change",
						slog.String("error", err.Error()),
					)
				}
			}

			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionFromContext returns the cart session stored by CartSession.
func sessionFromContext(ctx context.Context) *service.CartSession {
	sess, _ := ctx.Value(sessionKey).(*service.CartSession)
	return sess
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be application/json"},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
