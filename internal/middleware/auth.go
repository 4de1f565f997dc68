// Package middleware provides HTTP middleware for the storefront API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/R3E-Network/storefront/internal/errors"
	internalhttputil "github.com/R3E-Network/storefront/internal/httputil"
	"github.com/R3E-Network/storefront/internal/logging"
	"github.com/R3E-Network/storefront/internal/token"
)

// TokenValidator resolves a bearer token to an identity.
type TokenValidator interface {
	Validate(tokenString string) (token.Identity, error)
}

// AuthMiddleware is the bearer token gate for protected routes.
type AuthMiddleware struct {
	tokens TokenValidator
	logger *logging.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(tokens TokenValidator, logger *logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		logger: logger,
	}
}

// Handler rejects requests without a valid bearer token and stores the
// resolved identity in the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized("Authorization header missing"))
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 {
			m.respondError(w, r, errors.Unauthorized("Invalid authorization header format"))
			return
		}
		if !strings.EqualFold(parts[0], "bearer") {
			m.respondError(w, r, errors.Unauthorized("Invalid authentication scheme"))
			return
		}

		identity, err := m.tokens.Validate(parts[1])
		if err != nil {
			m.respondError(w, r, errors.InvalidToken(err))
			return
		}

		ctx := logging.WithUserID(r.Context(), identity.Subject)
		ctx = logging.WithRole(ctx, identity.PrincipalType())

		m.logger.WithContext(ctx).WithField("principal_type", identity.PrincipalType()).
			Debug("Authentication successful")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, serviceErr *errors.ServiceError) {
	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	fields := map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"reason": serviceErr.Message,
	}
	if serviceErr.Err != nil {
		fields["error"] = serviceErr.Err.Error()
	}
	m.logger.LogSecurityEvent(r.Context(), "authentication_failed", fields)
}

// RequirePrincipal rejects authenticated requests whose principal type is not
// one of allowed. It must run after AuthMiddleware.
func RequirePrincipal(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]bool, len(allowed))
	for _, p := range allowed {
		set[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUserID(r.Context()) == "" {
				internalhttputil.Unauthorized(w, "")
				return
			}
			if !set[GetPrincipalType(r.Context())] {
				internalhttputil.WriteError(w, r, errors.Forbidden("Principal type not permitted for this route"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserID returns the authenticated identity, or "" outside the gate.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetPrincipalType returns the authenticated principal type, or "".
func GetPrincipalType(ctx context.Context) string {
	return logging.GetRole(ctx)
}
