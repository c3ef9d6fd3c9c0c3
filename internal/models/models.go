package models

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name         string    `gorm:"size:255;not null"         json:"name"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null"                  json:"-"`
	Role         Role      `gorm:"not null;default:0"        json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TokenSession is one login's refresh lineage. Rotation updates the row in
// place; the refresh token itself is only stored as a SHA-256 hash.
type TokenSession struct {
	ID               uint      `gorm:"primaryKey"                json:"id"`
	UserID           uint      `gorm:"index;not null"            json:"user_id"`
	Device           string    `gorm:"size:512"                  json:"device"`
	RefreshHash      string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	InitiatedAt      time.Time `gorm:"not null;index"            json:"initiated_at"`
	ExpiresAt        time.Time `gorm:"not null"                  json:"expires_at"`
	RefreshExpiresAt time.Time `gorm:"not null"                  json:"refresh_expires_at"`
	IsRevoked        bool      `gorm:"not null;default:false"    json:"is_revoked"`
}

func (s *TokenSession) AccessLive(now time.Time) bool {
	return !s.IsRevoked && s.ExpiresAt.After(now)
}

func (s *TokenSession) RefreshLive(now time.Time) bool {
	return !s.IsRevoked && s.RefreshExpiresAt.After(now)
}
