package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/xtrntr/supplylink/internal/market"
	"github.com/xtrntr/supplylink/internal/models"
)

type identityKey struct{}

// WithIdentity returns a context carrying id
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity the auth middleware stored in ctx
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(models.Identity)
	return id, ok
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeMessage(w, http.StatusUnauthorized, "not_authenticated", "Authorization header required")
			return
		}

		// Remove "Bearer " prefix if present
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		id, err := h.AuthService.IdentityFromToken(tokenString)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "not_authenticated", "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireRole rejects callers whose role is not role
func (h *Handler) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				h.writeError(w, market.ErrNotAuthenticated)
				return
			}
			if id.Role != role {
				writeMessage(w, http.StatusForbidden, "forbidden_role", "Only "+role.String()+"s can do this")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request
func (h *Handler) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
