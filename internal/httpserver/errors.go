package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/ticket_reservation/internal/service"
	"github.com/Skotchmaster/ticket_reservation/pkg/logging"
	"github.com/Skotchmaster/ticket_reservation/pkg/validate"
)

// authError maps session manager failures to client responses. Messages stay
// generic so callers cannot tell an unknown email from a wrong password.
func authError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, service.ErrMissingToken):
		return echo.NewHTTPError(http.StatusUnauthorized, "Refresh token not provided")
	case errors.Is(err, service.ErrInvalidToken):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token")
	case errors.Is(err, service.ErrSessionExpired):
		return echo.NewHTTPError(http.StatusUnauthorized, "Session expired or invalid")
	case errors.Is(err, service.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "The email has already been taken.")
	case errors.Is(err, service.ErrTooManyAttempts):
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many login attempts")
	default:
		return err
	}
}

// ErrorHandler renders every error as {"message": ...}; validation failures
// add "errors" with per-field messages. Unknown errors become a bare 500.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	body := echo.Map{"message": http.StatusText(http.StatusInternalServerError)}

	var (
		v  validate.Errors
		he *echo.HTTPError
	)
	switch {
	case errors.As(err, &v):
		code = http.StatusUnprocessableEntity
		body = echo.Map{"message": "Validation failed.", "errors": v}
	case errors.As(err, &he):
		code = he.Code
		msg := he.Message
		if e, ok := msg.(error); ok {
			msg = e.Error()
		}
		if msg == nil || msg == "" {
			msg = http.StatusText(code)
		}
		body = echo.Map{"message": msg}
	default:
		logging.FromContext(c.Request().Context()).Error("unhandled_error", "error", err)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, body)
	}
	if werr != nil {
		logging.FromContext(c.Request().Context()).Error("error_response_failed", "error", werr)
	}
}
