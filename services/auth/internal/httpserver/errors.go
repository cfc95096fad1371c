package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rca-academy/school_mis/pkg/logging"
	"github.com/rca-academy/school_mis/services/auth/internal/service"
	"github.com/rca-academy/school_mis/services/auth/internal/transport"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidResetToken):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAuthenticationFailed), errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a service error. Internal errors never leak their text.
func writeError(c echo.Context, handler string, err error) error {
	code := statusFor(err)
	body := transport.ErrorResponse{Error: err.Error()}

	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		body = transport.ErrorResponse{Error: service.ErrValidation.Error(), Fields: ve.Fields}
	case errors.Is(err, service.ErrInvalidResetToken):
		body.Error = service.ErrInvalidResetToken.Error()
	case code == http.StatusInternalServerError:
		body.Error = http.StatusText(code)
	}

	l := logging.FromContext(c.Request().Context()).With("handler", handler)
	if code >= 500 {
		l.Error(handler+"_error", "status", code, "error", err)
	} else {
		l.Warn(handler+"_error", "status", code, "error", body.Error)
	}
	return c.JSON(code, body)
}
