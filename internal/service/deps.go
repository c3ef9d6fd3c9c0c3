package service

import (
	"context"
	"time"

	"github.com/Skotchmaster/ticket_reservation/internal/models"
	"github.com/Skotchmaster/ticket_reservation/internal/repo"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *models.TokenSession) error
	GetSessionByRefreshHash(ctx context.Context, hash string) (*models.TokenSession, error)
	RotateSession(ctx context.Context, rot repo.Rotation) error
	RevokeSession(ctx context.Context, id uint, hash string) error
	RevokeUserSessions(ctx context.Context, userID, exceptID uint) (int64, error)
	ListActiveSessions(ctx context.Context, userID uint, now time.Time) ([]models.TokenSession, error)
}

// EventPublisher matches mykafka.Producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

// LoginLimiter counts login attempts per key. Allow records an attempt.
type LoginLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

type noopPublisher struct{}

func (noopPublisher) PublishEvent(context.Context, string, string, any) error { return nil }

type noopLimiter struct{}

func (noopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (noopLimiter) Reset(context.Context, string) error        { return nil }
