package authmw

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rca-academy/school_mis/pkg/authclient"
	"github.com/rca-academy/school_mis/pkg/logging"
	"github.com/rca-academy/school_mis/pkg/tokens"
)

const (
	// HeaderRefreshToken lets a client offer its refresh token alongside an
	// expired access token.
	HeaderRefreshToken = "X-Refresh-Token"
	// HeaderNewAccessToken and HeaderNewRefreshToken carry a rotated pair back.
	HeaderNewAccessToken  = "X-New-Access-Token"
	HeaderNewRefreshToken = "X-New-Refresh-Token"

	ContextEmail     = "auth_email"
	ContextSessionID = "auth_session_id"
)

// TokenAuthority is the part of authclient.Client the middleware needs.
type TokenAuthority interface {
	ValidateToken(ctx context.Context, accessToken string) (bool, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*authclient.TokenPair, error)
}

// AutoRefreshMiddleware guards routes of services that sit next to the auth
// service and share its signing secret. Signatures are checked locally;
// revocation is checked remotely. An expired access token is swapped for a
// new pair when the client sends its refresh token.
type AutoRefreshMiddleware struct {
	Codec     *tokens.Codec
	Authority TokenAuthority
}

func NewAutoRefreshMiddleware(codec *tokens.Codec, authority TokenAuthority) *AutoRefreshMiddleware {
	return &AutoRefreshMiddleware{Codec: codec, Authority: authority}
}

func bearer(c echo.Context) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization)), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (m *AutoRefreshMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		l := logging.FromContext(ctx).With("mw", "auto_refresh")

		access := bearer(c)
		if access == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := m.Codec.DecodeAs(access, tokens.Access)
		switch {
		case err == nil:
		case errors.Is(err, tokens.ErrExpiredToken):
			claims, access, err = m.refresh(c)
			if err != nil {
				l.Warn("auto_refresh_failed", "error", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
		default:
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		ok, err := m.Authority.ValidateToken(ctx, access)
		if err != nil {
			l.Error("validate_token_failed", "error", err)
			return echo.NewHTTPError(http.StatusServiceUnavailable, "authentication unavailable")
		}
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		c.Set(ContextEmail, claims.Subject)
		c.Set(ContextSessionID, claims.SessionID)
		return next(c)
	}
}

func (m *AutoRefreshMiddleware) refresh(c echo.Context) (*tokens.Claims, string, error) {
	refreshToken := strings.TrimSpace(c.Request().Header.Get(HeaderRefreshToken))
	if refreshToken == "" {
		return nil, "", errors.New("refresh token missing")
	}

	pair, err := m.Authority.RefreshTokens(c.Request().Context(), refreshToken)
	if err != nil {
		return nil, "", err
	}
	claims, err := m.Codec.DecodeAs(pair.AccessToken, tokens.Access)
	if err != nil {
		return nil, "", err
	}

	h := c.Response().Header()
	h.Set(HeaderNewAccessToken, pair.AccessToken)
	h.Set(HeaderNewRefreshToken, pair.RefreshToken)
	return claims, pair.AccessToken, nil
}
