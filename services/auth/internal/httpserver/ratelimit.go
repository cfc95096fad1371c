package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rca-academy/school_mis/pkg/logging"
	"github.com/rca-academy/school_mis/services/auth/internal/limiter"
	"github.com/rca-academy/school_mis/services/auth/internal/transport"
)

// PerIP throttles a route by client address. A nil limiter lets everything
// through.
func PerIP(l *limiter.KeyedLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if l == nil {
			return next
		}
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				logging.FromContext(c.Request().Context()).Warn("rate_limited", "path", c.Path())
				return c.JSON(http.StatusTooManyRequests, transport.ErrorResponse{Error: "too many attempts"})
			}
			return next(c)
		}
	}
}
