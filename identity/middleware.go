package identity

import (
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fleetrent/admin-gateway/httpx"
)

// Middleware authenticates requests and stores the resolved Principal on the
// request context.
type Middleware struct {
	provider Provider
	logger   *zap.Logger
}

// NewMiddleware creates an authentication middleware backed by the provider.
func NewMiddleware(provider Provider, logger *zap.Logger) *Middleware {
	return &Middleware{provider: provider, logger: logger}
}

// RequireAuth resolves the bearer credential into a Principal and rejects the
// request with 401 when resolution fails. Downstream handlers read the
// Principal from the context; no global caller state exists.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		credential := extractBearerToken(r)
		if credential == "" {
			m.logger.Warn("missing credential",
				zap.String("request_id", chimw.GetReqID(ctx)))
			_ = httpx.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		principal, err := m.provider.Resolve(ctx, credential)
		if err != nil {
			m.logger.Warn("credential resolution failed",
				zap.String("request_id", chimw.GetReqID(ctx)),
				zap.Error(err))
			_ = httpx.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		m.logger.Debug("authenticated",
			zap.String("request_id", chimw.GetReqID(ctx)),
			zap.String("principal_id", principal.ID.String()))

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
	})
}

// extractBearerToken extracts the Bearer token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
