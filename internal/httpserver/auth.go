package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/ticket_reservation/internal/metrics"
	"github.com/Skotchmaster/ticket_reservation/internal/middleware/auth"
	"github.com/Skotchmaster/ticket_reservation/internal/service"
	"github.com/Skotchmaster/ticket_reservation/pkg/logging"
)

type AuthHandler struct {
	Svc     *service.AuthService
	Cookie  CookieConfig
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func (h *AuthHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// outcome labels the result of op for the auth counters.
func (h *AuthHandler) outcome(op string, err error) {
	label := "success"
	switch {
	case err == nil:
	case errors.Is(err, service.ErrValidation):
		label = "validation"
	case errors.Is(err, service.ErrInvalidCredentials):
		label = "invalid_credentials"
	case errors.Is(err, service.ErrMissingToken):
		label = "missing_token"
	case errors.Is(err, service.ErrInvalidToken):
		label = "invalid_token"
	case errors.Is(err, service.ErrSessionExpired):
		label = "session_expired"
	case errors.Is(err, service.ErrConflict):
		label = "conflict"
	case errors.Is(err, service.ErrTooManyAttempts):
		label = "throttled"
	default:
		label = "error"
	}
	h.Metrics.AuthOutcome(op, label)
}

func refreshCookie(c echo.Context) string {
	ck, err := c.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (h *AuthHandler) Register(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth_register")

	var req struct {
		Name                 string `json:"name"`
		Email                string `json:"email"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
		Role                 *int   `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Svc.Register(c.Request().Context(), service.RegisterInput{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
		Role:                 req.Role,
	})
	h.outcome("register", err)
	if err != nil {
		return authError(err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "User registered successfully",
		"user":    user,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth_login")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(c.Request().Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Device:   c.Request().UserAgent(),
		ClientIP: c.RealIP(),
	})
	h.outcome("login", err)
	if err != nil {
		return authError(err)
	}

	c.SetCookie(h.Cookie.Refresh(res.RefreshToken, h.now()))
	return c.JSON(http.StatusOK, echo.Map{
		"message":      "Login successful",
		"access_token": res.AccessToken,
		"user":         res.User,
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	res, err := h.Svc.Refresh(c.Request().Context(), refreshCookie(c))
	h.outcome("refresh", err)
	if err != nil {
		return authError(err)
	}

	c.SetCookie(h.Cookie.Refresh(res.RefreshToken, h.now()))
	return c.JSON(http.StatusOK, echo.Map{
		"message":      "Token refreshed successfully",
		"access_token": res.AccessToken,
	})
}

func (h *AuthHandler) LogOut(c echo.Context) error {
	err := h.Svc.LogOut(c.Request().Context(), refreshCookie(c))
	h.outcome("logout", err)
	if err != nil {
		return authError(err)
	}

	c.SetCookie(h.Cookie.ClearRefresh())
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

func (h *AuthHandler) LogOutAll(c echo.Context) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	n, err := h.Svc.LogOutAll(c.Request().Context(), user.ID)
	h.outcome("logout_all", err)
	if err != nil {
		return err
	}

	c.SetCookie(h.Cookie.ClearRefresh())
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out from all sessions", "revoked": n})
}

func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) Sessions(c echo.Context) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	current, _ := auth.SessionIDFromContext(c)

	sessions, err := h.Svc.ActiveSessions(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}

	out := make([]echo.Map, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, echo.Map{
			"id":                 s.ID,
			"device":             s.Device,
			"initiated_at":       s.InitiatedAt,
			"expires_at":         s.ExpiresAt,
			"refresh_expires_at": s.RefreshExpiresAt,
			"current":            s.ID == current,
		})
	}
	return c.JSON(http.StatusOK, out)
}
