package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/ticket_reservation/internal/models"
	"github.com/Skotchmaster/ticket_reservation/internal/repo"
	pkg_hash "github.com/Skotchmaster/ticket_reservation/pkg/hash"
	"github.com/Skotchmaster/ticket_reservation/pkg/logging"
	"github.com/Skotchmaster/ticket_reservation/pkg/tokens"
	"github.com/Skotchmaster/ticket_reservation/pkg/validate"
)

const (
	DefaultAccessTTL  = 10 * time.Minute
	DefaultRefreshTTL = 5 * time.Hour
	DefaultEventTopic = "user_events"
)

type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RevokeOtherSessions revokes the user's other sessions on every login.
	// Off by default: each device keeps its own session until it expires.
	RevokeOtherSessions bool
	EventTopic          string
}

type AuthService struct {
	Users    UserStore
	Sessions SessionStore
	Tokens   *tokens.Codec
	Events   EventPublisher
	Cfg      Config
	Now      func() time.Time

	// Limiter counts attempts per email and client address, AccountLimiter
	// per email from any address.
	Limiter        LoginLimiter
	AccountLimiter LoginLimiter
}

type RegisterInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
	Role                 *int
}

type LoginInput struct {
	Email    string
	Password string
	Device   string
	ClientIP string
}

type LoginResult struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
	User         *models.User
	Session      *models.TokenSession
}

func (h *AuthService) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *AuthService) accessTTL() time.Duration {
	if h.Cfg.AccessTTL > 0 {
		return h.Cfg.AccessTTL
	}
	return DefaultAccessTTL
}

func (h *AuthService) refreshTTL() time.Duration {
	if h.Cfg.RefreshTTL > 0 {
		return h.Cfg.RefreshTTL
	}
	return DefaultRefreshTTL
}

func (h *AuthService) events() EventPublisher {
	if h.Events == nil {
		return noopPublisher{}
	}
	return h.Events
}

func (h *AuthService) limiter() LoginLimiter {
	if h.Limiter == nil {
		return noopLimiter{}
	}
	return h.Limiter
}

func (h *AuthService) accountLimiter() LoginLimiter {
	if h.AccountLimiter == nil {
		return noopLimiter{}
	}
	return h.AccountLimiter
}

// allowLogin records the attempt in both buckets. Limiter errors are logged
// and do not block the login.
func (h *AuthService) allowLogin(ctx context.Context, l *slog.Logger, emailKey, addrKey string) bool {
	allowed := true
	if ok, err := h.limiter().Allow(ctx, addrKey); err != nil {
		l.Error("login_limiter_error", "error", err)
	} else if !ok {
		allowed = false
	}
	if ok, err := h.accountLimiter().Allow(ctx, emailKey); err != nil {
		l.Error("login_limiter_error", "error", err)
	} else if !ok {
		allowed = false
	}
	return allowed
}

func (h *AuthService) resetLogin(ctx context.Context, l *slog.Logger, emailKey, addrKey string) {
	if err := h.limiter().Reset(ctx, addrKey); err != nil {
		l.Error("login_limiter_error", "error", err)
	}
	if err := h.accountLimiter().Reset(ctx, emailKey); err != nil {
		l.Error("login_limiter_error", "error", err)
	}
}

// revokeNew drops a session created by a login that failed afterwards.
func (h *AuthService) revokeNew(ctx context.Context, l *slog.Logger, s *models.TokenSession) {
	if err := h.Sessions.RevokeSession(ctx, s.ID, s.RefreshHash); err != nil {
		l.Error("login_cleanup_failed", "session_id", s.ID, "error", err)
	}
}

func (h *AuthService) publish(ctx context.Context, userID uint, event map[string]any) {
	topic := h.Cfg.EventTopic
	if topic == "" {
		topic = DefaultEventTopic
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.events().PublishEvent(pubCtx, topic, strconv.FormatUint(uint64(userID), 10), event); err != nil {
		logging.FromContext(ctx).Error("event_publish_error", "type", event["type"], "error", err)
	}
}

func (h *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	v := validate.Errors{}
	if v.Required("name", in.Name) {
		v.MaxLen("name", in.Name, 255)
	}
	if v.Required("email", in.Email) {
		v.Email("email", in.Email)
		v.MaxLen("email", in.Email, 255)
	}
	if v.Required("password", in.Password) {
		v.MinLen("password", in.Password, 8)
		if len(in.Password) > pkg_hash.MaxPasswordBytes {
			v.Add("password", "The password may not be greater than %d bytes.", pkg_hash.MaxPasswordBytes)
		}
		if in.Password != in.PasswordConfirmation {
			v.Add("password", "The password field confirmation does not match.")
		}
	}
	role := models.RoleGuest
	if in.Role != nil {
		r, err := models.ParseRole(*in.Role)
		if err != nil {
			v.Add("role", "The selected role is invalid.")
		}
		role = r
	}
	if err := v.Err(); err != nil {
		l.Warn("register_error", "status", 422, "reason", "validation")
		return nil, err
	}

	pwHash, err := pkg_hash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := &models.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        in.Email,
		PasswordHash: pwHash,
		Role:         role,
	}
	if err := h.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_failed", "status", 409, "reason", "user_exists")
			return nil, fmt.Errorf("%w: email already taken", ErrConflict)
		}
		l.Error("register_failed", "status", 500, "reason", "db_error", "error", err)
		return nil, err
	}

	h.publish(ctx, user.ID, map[string]any{
		"type":    "user_registered",
		"user_id": user.ID,
		"role":    int(user.Role),
	})
	l.Info("register_success", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and opens exactly one new session.
func (h *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	v := validate.Errors{}
	v.Required("email", in.Email)
	v.Required("password", in.Password)
	if err := v.Err(); err != nil {
		return nil, err
	}

	emailKey := strings.ToLower(strings.TrimSpace(in.Email))
	addrKey := emailKey + "|" + in.ClientIP
	if !h.allowLogin(ctx, l, emailKey, addrKey) {
		l.Warn("login_failed", "status", 429, "reason", "too many attempts")
		return nil, ErrTooManyAttempts
	}

	user, err := h.Users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			pkg_hash.BurnCompare(in.Password)
			l.Warn("login_failed", "status", 401, "reason", "invalid email or password")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}
	if !pkg_hash.CheckPassword(user.PasswordHash, in.Password) {
		l.Warn("login_failed", "status", 401, "reason", "invalid email or password")
		return nil, ErrInvalidCredentials
	}

	now := h.now()
	refreshToken, err := tokens.NewRefreshToken()
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot create token", "error", err)
		return nil, err
	}

	session := &models.TokenSession{
		UserID:           user.ID,
		Device:           in.Device,
		RefreshHash:      tokens.HashRefreshToken(refreshToken),
		InitiatedAt:      now,
		ExpiresAt:        now.Add(h.accessTTL()),
		RefreshExpiresAt: now.Add(h.refreshTTL()),
	}
	if err := h.Sessions.CreateSession(ctx, session); err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot add session to db", "error", err)
		return nil, err
	}

	accessToken, accessExp, err := h.Tokens.Encode(tokens.Subject{UserID: user.ID, Name: user.Name, SessionID: session.ID})
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot create token", "error", err)
		h.revokeNew(ctx, l, session)
		return nil, err
	}

	if h.Cfg.RevokeOtherSessions {
		n, err := h.Sessions.RevokeUserSessions(ctx, user.ID, session.ID)
		if err != nil {
			l.Error("login_failed", "status", 500, "reason", "cannot revoke other sessions", "error", err)
			h.revokeNew(ctx, l, session)
			return nil, err
		}
		l.Info("other_sessions_revoked", "user_id", user.ID, "count", n)
	}

	h.resetLogin(ctx, l, emailKey, addrKey)

	h.publish(ctx, user.ID, map[string]any{
		"type":       "user_logged_in",
		"user_id":    user.ID,
		"session_id": session.ID,
		"device":     session.Device,
	})
	l.Info("login_successful", "user_id", user.ID, "session_id", session.ID)

	return &LoginResult{
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshToken,
		RefreshExp:   session.RefreshExpiresAt,
		User:         user,
		Session:      session,
	}, nil
}

// Refresh rotates the refresh token of one session and slides both expiries.
// A replayed or concurrently rotated token fails with ErrInvalidToken.
func (h *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if refreshToken == "" {
		return nil, ErrMissingToken
	}

	oldHash := tokens.HashRefreshToken(refreshToken)
	session, err := h.Sessions.GetSessionByRefreshHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("refresh_failed", "status", 401, "reason", "unknown refresh token")
			return nil, ErrInvalidToken
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}
	if session.IsRevoked {
		l.Warn("refresh_failed", "status", 401, "reason", "session revoked", "session_id", session.ID)
		return nil, ErrInvalidToken
	}

	now := h.now()
	if !session.RefreshLive(now) {
		l.Warn("refresh_failed", "status", 401, "reason", "session expired", "session_id", session.ID)
		return nil, ErrSessionExpired
	}

	user, err := h.Users.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	newToken, err := tokens.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	rot := repo.Rotation{
		SessionID:        session.ID,
		OldHash:          oldHash,
		NewHash:          tokens.HashRefreshToken(newToken),
		ExpiresAt:        now.Add(h.accessTTL()),
		RefreshExpiresAt: now.Add(h.refreshTTL()),
		Now:              now,
	}
	if err := h.Sessions.RotateSession(ctx, rot); err != nil {
		if errors.Is(err, repo.ErrStaleSession) {
			l.Warn("refresh_failed", "status", 401, "reason", "refresh token already rotated", "session_id", session.ID)
			return nil, ErrInvalidToken
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}

	accessToken, accessExp, err := h.Tokens.Encode(tokens.Subject{UserID: user.ID, Name: user.Name, SessionID: session.ID})
	if err != nil {
		l.Error("refresh_failed", "status", 500, "reason", "cannot create token", "error", err)
		return nil, err
	}

	session.RefreshHash = rot.NewHash
	session.ExpiresAt = rot.ExpiresAt
	session.RefreshExpiresAt = rot.RefreshExpiresAt

	h.publish(ctx, user.ID, map[string]any{
		"type":       "session_refreshed",
		"user_id":    user.ID,
		"session_id": session.ID,
	})
	l.Info("refresh_successful", "user_id", user.ID, "session_id", session.ID)

	return &LoginResult{
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: newToken,
		RefreshExp:   rot.RefreshExpiresAt,
		User:         user,
		Session:      session,
	}, nil
}

// LogOut revokes the session owning refreshToken. It is not idempotent: the
// second call with the same token fails with ErrInvalidToken.
func (h *AuthService) LogOut(ctx context.Context, refreshToken string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if refreshToken == "" {
		return ErrMissingToken
	}

	hash := tokens.HashRefreshToken(refreshToken)
	session, err := h.Sessions.GetSessionByRefreshHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("logout_failed", "status", 401, "reason", "unknown refresh token")
			return ErrInvalidToken
		}
		l.Error("logout_failed", "status", 500, "error", err)
		return err
	}
	if session.IsRevoked {
		l.Warn("logout_failed", "status", 401, "reason", "session already revoked", "session_id", session.ID)
		return ErrInvalidToken
	}

	if err := h.Sessions.RevokeSession(ctx, session.ID, hash); err != nil {
		if errors.Is(err, repo.ErrStaleSession) {
			return ErrInvalidToken
		}
		l.Error("logout_failed", "status", 500, "reason", "cannot revoke session", "error", err)
		return err
	}

	h.publish(ctx, session.UserID, map[string]any{
		"type":       "user_logged_out",
		"user_id":    session.UserID,
		"session_id": session.ID,
	})
	l.Info("successful_logout", "user_id", session.UserID, "session_id", session.ID)
	return nil
}

func (h *AuthService) LogOutAll(ctx context.Context, userID uint) (int64, error) {
	n, err := h.Sessions.RevokeUserSessions(ctx, userID, 0)
	if err != nil {
		logging.FromContext(ctx).Error("logout_all_failed", "status", 500, "user_id", userID, "error", err)
		return 0, err
	}
	h.publish(ctx, userID, map[string]any{
		"type":    "user_logged_out_everywhere",
		"user_id": userID,
		"count":   n,
	})
	return n, nil
}

func (h *AuthService) ActiveSessions(ctx context.Context, userID uint) ([]models.TokenSession, error) {
	return h.Sessions.ListActiveSessions(ctx, userID, h.now())
}
