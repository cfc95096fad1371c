package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rca-academy/school_mis/pkg/logging"
	"github.com/rca-academy/school_mis/services/auth/internal/limiter"
	"github.com/rca-academy/school_mis/services/auth/internal/metrics"
	"github.com/rca-academy/school_mis/services/auth/internal/middleware"
)

// PermissionRolesRead guards the role catalogue.
const PermissionRolesRead = "users:read"

type Deps struct {
	AuthHandler *AuthHTTP
	Guard       *middleware.Guard
	// IPLimiter throttles login, verify-otp and forgot-password.
	IPLimiter *limiter.KeyedLimiter
	// Ready reports whether backing stores answer.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.Validator = NewValidator()

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				logging.FromContext(c.Request().Context()).Error("readiness_failed", "error", err)
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})
	e.GET("/metrics", metrics.Handler())

	h := d.AuthHandler
	throttle := PerIP(d.IPLimiter)

	g := e.Group("/auth")
	g.GET("/health", h.Health)
	g.POST("/login", h.Login, throttle)
	g.POST("/register", h.Register)
	g.POST("/refresh-token", h.RefreshToken)
	g.POST("/logout", h.Logout)
	g.POST("/validate-token", h.ValidateToken)
	g.POST("/forgot-password", h.ForgotPassword, throttle)
	g.POST("/reset-password", h.ResetPassword)
	g.POST("/verify-otp", h.VerifyOTP, throttle)

	auth := d.Guard.RequireAuth
	g.POST("/change-password", h.ChangePassword, auth)
	g.GET("/profile", h.GetProfile, auth)
	g.PUT("/profile", h.UpdateProfile, auth)
	g.GET("/roles", h.ListRoles, auth, d.Guard.RequirePermission(PermissionRolesRead))
}
