package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rca-academy/school_mis/pkg/logging"
	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/middleware"
	"github.com/rca-academy/school_mis/services/auth/internal/service"
	"github.com/rca-academy/school_mis/services/auth/internal/transport"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

func badBody(c echo.Context, handler string, err error) error {
	logging.FromContext(c.Request().Context()).Warn(handler+"_error", "status", http.StatusBadRequest, "error", err)
	return c.JSON(http.StatusBadRequest, transport.ErrorResponse{Error: "invalid body"})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c, "auth_login", err)
	}
	if err := c.Validate(&req); err != nil {
		return writeError(c, "auth_login", err)
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return writeError(c, "auth_login", err)
	}
	return c.JSON(http.StatusOK, transport.NewTokenResponse(res))
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c, "auth_register", err)
	}
	req.Gender = strings.ToUpper(strings.TrimSpace(req.Gender))
	if err := c.Validate(&req); err != nil {
		return writeError(c, "auth_register", err)
	}

	res, err := h.Svc.Register(ctx, req.Input())
	if err != nil {
		return writeError(c, "auth_register", err)
	}
	return c.JSON(http.StatusCreated, transport.NewTokenResponse(res))
}

func (h *AuthHTTP) RefreshToken(c echo.Context) error {
	req := transport.RefreshRequest{RefreshToken: c.FormValue("refreshToken")}
	if err := c.Validate(&req); err != nil {
		return writeError(c, "auth_refresh", err)
	}

	res, err := h.Svc.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return writeError(c, "auth_refresh", err)
	}
	return c.JSON(http.StatusOK, transport.NewTokenResponse(res))
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	if token, ok := middleware.BearerToken(c); ok {
		h.Svc.Logout(c.Request().Context(), token)
	}
	return c.JSON(http.StatusOK, transport.MessageResponse{Message: "logged out"})
}

func (h *AuthHTTP) ValidateToken(c echo.Context) error {
	token, ok := middleware.BearerToken(c)
	if !ok {
		return c.JSON(http.StatusOK, false)
	}
	return c.JSON(http.StatusOK, h.Svc.ValidateToken(c.Request().Context(), token))
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	id, ok := domain.IdentityFromContext(ctx)
	if !ok {
		return writeError(c, "auth_change_password", service.ErrInvalidToken)
	}

	req := transport.ChangePasswordRequest{
		CurrentPassword: c.FormValue("currentPassword"),
		NewPassword:     c.FormValue("newPassword"),
	}
	if err := c.Validate(&req); err != nil {
		return writeError(c, "auth_change_password", err)
	}

	if err := h.Svc.ChangePassword(ctx, id, req.CurrentPassword, req.NewPassword); err != nil {
		return writeError(c, "auth_change_password", err)
	}
	return c.JSON(http.StatusOK, transport.MessageResponse{Message: "password changed"})
}

// ForgotPassword answers the same way whether or not the account exists.
func (h *AuthHTTP) ForgotPassword(c echo.Context) error {
	req := transport.ForgotPasswordRequest{Email: c.FormValue("email")}
	h.Svc.RequestPasswordReset(c.Request().Context(), req.Email)
	return c.JSON(http.StatusOK, transport.MessageResponse{
		Message: "if the account exists, a verification code has been sent",
	})
}

func (h *AuthHTTP) ResetPassword(c echo.Context) error {
	req := transport.ResetPasswordRequest{
		ResetToken:  c.FormValue("resetToken"),
		NewPassword: c.FormValue("newPassword"),
	}
	if err := c.Validate(&req); err != nil {
		return writeError(c, "auth_reset_password", err)
	}

	if err := h.Svc.ResetPassword(c.Request().Context(), req.ResetToken, req.NewPassword); err != nil {
		return writeError(c, "auth_reset_password", err)
	}
	return c.JSON(http.StatusOK, transport.MessageResponse{Message: "password reset"})
}

func (h *AuthHTTP) VerifyOTP(c echo.Context) error {
	req := transport.VerifyOTPRequest{Email: c.FormValue("email"), OTP: c.FormValue("otp")}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusOK, false)
	}

	ok, err := h.Svc.VerifyOTP(c.Request().Context(), req.Email, req.OTP)
	if err != nil {
		return writeError(c, "auth_verify_otp", err)
	}
	return c.JSON(http.StatusOK, ok)
}

func (h *AuthHTTP) GetProfile(c echo.Context) error {
	ctx := c.Request().Context()
	id, _ := domain.IdentityFromContext(ctx)

	p, err := h.Svc.GetProfile(ctx, id)
	if err != nil {
		return writeError(c, "auth_get_profile", err)
	}
	return c.JSON(http.StatusOK, transport.NewProfileResponse(p))
}

func (h *AuthHTTP) UpdateProfile(c echo.Context) error {
	ctx := c.Request().Context()
	id, _ := domain.IdentityFromContext(ctx)

	var req transport.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c, "auth_update_profile", err)
	}
	if err := c.Validate(&req); err != nil {
		return writeError(c, "auth_update_profile", err)
	}

	p, err := h.Svc.UpdateProfile(ctx, id, req.Input())
	if err != nil {
		return writeError(c, "auth_update_profile", err)
	}
	return c.JSON(http.StatusOK, transport.NewProfileResponse(p))
}

func (h *AuthHTTP) ListRoles(c echo.Context) error {
	roles, err := h.Svc.ListRoles(c.Request().Context())
	if err != nil {
		return writeError(c, "auth_list_roles", err)
	}
	return c.JSON(http.StatusOK, transport.NewRoleResponses(roles))
}

func (h *AuthHTTP) Health(c echo.Context) error {
	return c.String(http.StatusOK, "Auth service is running")
}
