package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rca-academy/school_mis/pkg/logging"
	"github.com/rca-academy/school_mis/services/auth/internal/authz"
	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/service"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.Identity, error)
}

// Guard protects routes with a Bearer access token.
type Guard struct {
	Auth     Authenticator
	Resolver *authz.Resolver
}

func NewGuard(auth Authenticator, resolver *authz.Resolver) *Guard {
	return &Guard{Auth: auth, Resolver: resolver}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c echo.Context) (string, bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth resolves the caller and stores the identity in the request
// context.
func (g *Guard) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := BearerToken(c)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		req := c.Request()
		id, err := g.Auth.Authenticate(req.Context(), token)
		if errors.Is(err, service.ErrInvalidToken) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}
		if err != nil {
			logging.FromContext(req.Context()).Error("authenticate_failed", "error", err)
			return echo.NewHTTPError(http.StatusServiceUnavailable, "authentication unavailable")
		}

		c.SetRequest(req.WithContext(domain.WithIdentity(req.Context(), id)))
		return next(c)
	}
}

// RequirePermission must run after RequireAuth. The caller needs every listed
// permission.
func (g *Guard) RequirePermission(perms ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := domain.IdentityFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}
			if !g.Resolver.HasAllPermissions(id, perms...) {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
			}
			return next(c)
		}
	}
}
