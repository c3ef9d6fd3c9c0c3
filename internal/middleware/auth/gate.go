// Package auth guards routes with a bearer access token, a minimum role and a
// live server-side session.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/ticket_reservation/internal/metrics"
	"github.com/Skotchmaster/ticket_reservation/internal/models"
	"github.com/Skotchmaster/ticket_reservation/internal/repo"
	"github.com/Skotchmaster/ticket_reservation/pkg/logging"
	"github.com/Skotchmaster/ticket_reservation/pkg/tokens"
)

const (
	MsgTokenNotProvided = "Token not provided"
	MsgTokenExpired     = "Unauthorized: access token needs to be refreshed"
	MsgUserNotFound     = "User not found"
	MsgForbidden        = "Forbidden: Access denied"
	MsgSessionExpired   = "Session expired or revoked"

	ctxUser      = "user"
	ctxSessionID = "session_id"
)

type Users interface {
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
}

type Sessions interface {
	GetSessionByID(ctx context.Context, id uint) (*models.TokenSession, error)
}

type Gate struct {
	Tokens   *tokens.Codec
	Users    Users
	Sessions Sessions
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Gate) reject(c echo.Context, code int, reason, msg string, err error) error {
	l := logging.FromContext(c.Request().Context())
	if err != nil {
		l.Warn("access_denied", "status", code, "reason", reason, "error", err)
	} else {
		l.Warn("access_denied", "status", code, "reason", reason)
	}
	g.Metrics.GateRejected(reason)
	return echo.NewHTTPError(code, msg)
}

// Require admits a request only when every check passes, in order: bearer
// token present, token decodes with our issuer and audience, user exists,
// role is at least required, session is live. The first failure is final.
func (g *Gate) Require(required models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c.Request())
			if raw == "" {
				return g.reject(c, http.StatusUnauthorized, "missing_token", MsgTokenNotProvided, nil)
			}

			claims, err := g.Tokens.Decode(raw)
			if err != nil {
				return g.reject(c, http.StatusUnauthorized, "invalid_token", MsgTokenExpired, err)
			}
			if !g.Tokens.VerifyAudience(claims) {
				return g.reject(c, http.StatusUnauthorized, "invalid_token", MsgTokenExpired, errors.New("issuer or audience mismatch"))
			}
			userID, err := claims.UserID()
			if err != nil {
				return g.reject(c, http.StatusUnauthorized, "invalid_token", MsgTokenExpired, err)
			}

			ctx := c.Request().Context()
			user, err := g.Users.GetUserByID(ctx, userID)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return g.reject(c, http.StatusNotFound, "user_not_found", MsgUserNotFound, nil)
				}
				return err
			}

			if !user.Role.AtLeast(required) {
				return g.reject(c, http.StatusForbidden, "forbidden", MsgForbidden, nil)
			}

			session, err := g.Sessions.GetSessionByID(ctx, claims.SessionID)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			if session == nil || session.UserID != user.ID || !session.AccessLive(g.now()) {
				return g.reject(c, http.StatusUnauthorized, "session_expired", MsgSessionExpired, nil)
			}

			SetUser(c, user, session.ID)
			ctx, _ = logging.With(ctx, "user_id", user.ID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SetUser attaches an admitted user to the request context.
func SetUser(c echo.Context, u *models.User, sessionID uint) {
	c.Set(ctxUser, u)
	c.Set(ctxSessionID, sessionID)
}

// UserFromContext returns the user admitted by the gate.
func UserFromContext(c echo.Context) (*models.User, bool) {
	u, ok := c.Get(ctxUser).(*models.User)
	return u, ok && u != nil
}

func SessionIDFromContext(c echo.Context) (uint, bool) {
	id, ok := c.Get(ctxSessionID).(uint)
	return id, ok
}
