package server

import (
	"context"
	"net/http"

	"integrate/internal/detect"
	"integrate/pkg/logging"
)

type contextKey string

const userContextKey contextKey = "integrate_user"

// ContextWithUser returns a copy of ctx carrying the detected user.
func ContextWithUser(ctx context.Context, uc *detect.UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, uc)
}

// UserFromContext returns the user detected for the current request.
func UserFromContext(ctx context.Context) (*detect.UserContext, bool) {
	uc, ok := ctx.Value(userContextKey).(*detect.UserContext)
	return uc, ok && uc != nil
}

// detectUser attaches the first matching session detector's result to the
// request context.
func detectUser(chain detect.Chain, next http.Handler) http.Handler {
	if len(chain) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uc, ok := chain.Detect(r); ok {
			logging.Debug("Server", "Request %s %s from %s user %s", r.Method, r.URL.Path, uc.Source, uc.UserID)
			r = r.WithContext(ContextWithUser(r.Context(), uc))
		}
		next.ServeHTTP(w, r)
	})
}
