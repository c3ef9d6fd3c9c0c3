package repo

import (
	"context"
	"time"

	"github.com/Skotchmaster/ticket_reservation/internal/models"
)

func (r *GormRepo) CreateSession(ctx context.Context, s *models.TokenSession) error {
	return r.DB.WithContext(ctx).Create(s).Error
}

func (r *GormRepo) GetSessionByID(ctx context.Context, id uint) (*models.TokenSession, error) {
	var s models.TokenSession
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *GormRepo) GetSessionByRefreshHash(ctx context.Context, hash string) (*models.TokenSession, error) {
	var s models.TokenSession
	if err := r.DB.WithContext(ctx).Where("refresh_hash = ?", hash).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

type Rotation struct {
	SessionID        uint
	OldHash          string
	NewHash          string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	Now              time.Time
}

// RotateSession swaps the refresh hash with a single compare-and-swap update.
// Of two concurrent rotations of the same token exactly one matches a row.
func (r *GormRepo) RotateSession(ctx context.Context, rot Rotation) error {
	res := r.DB.WithContext(ctx).Model(&models.TokenSession{}).
		Where("id = ? AND refresh_hash = ? AND is_revoked = ? AND refresh_expires_at > ?",
			rot.SessionID, rot.OldHash, false, rot.Now).
		Updates(map[string]any{
			"refresh_hash":       rot.NewHash,
			"expires_at":         rot.ExpiresAt,
			"refresh_expires_at": rot.RefreshExpiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleSession
	}
	return nil
}

// RevokeSession revokes the session only while it still carries hash.
func (r *GormRepo) RevokeSession(ctx context.Context, id uint, hash string) error {
	res := r.DB.WithContext(ctx).Model(&models.TokenSession{}).
		Where("id = ? AND refresh_hash = ? AND is_revoked = ?", id, hash, false).
		Update("is_revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleSession
	}
	return nil
}

// RevokeUserSessions revokes every live session of the user except exceptID
// (0 revokes all) and reports how many rows changed.
func (r *GormRepo) RevokeUserSessions(ctx context.Context, userID, exceptID uint) (int64, error) {
	q := r.DB.WithContext(ctx).Model(&models.TokenSession{}).
		Where("user_id = ? AND is_revoked = ?", userID, false)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	res := q.Update("is_revoked", true)
	return res.RowsAffected, res.Error
}

func (r *GormRepo) ListActiveSessions(ctx context.Context, userID uint, now time.Time) ([]models.TokenSession, error) {
	var out []models.TokenSession
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND is_revoked = ? AND refresh_expires_at > ?", userID, false, now).
		Order("initiated_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
