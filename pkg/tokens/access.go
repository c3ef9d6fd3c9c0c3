// Package tokens signs and verifies access tokens and mints opaque refresh tokens.
package tokens

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultIssuer   = "BilietSistema"
	DefaultAudience = "Client"
	DefaultTTL      = 10 * time.Minute
)

// ErrDecode is the only error Decode returns. The cause is wrapped for logs and
// must not be shown to clients.
var ErrDecode = errors.New("access token decode failed")

type AccessClaims struct {
	Name      string `json:"name"`
	SessionID uint   `json:"sid"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessClaims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject %q", ErrDecode, c.Subject)
	}
	return uint(id), nil
}

type Subject struct {
	UserID    uint
	Name      string
	SessionID uint
}

type Codec struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Now      func() time.Time
}

func NewCodec(secret []byte, issuer, audience string, ttl time.Duration) *Codec {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if audience == "" {
		audience = DefaultAudience
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{Secret: secret, Issuer: issuer, Audience: audience, TTL: ttl, Now: time.Now}
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Codec) Encode(sub Subject) (string, time.Time, error) {
	iat := c.now()
	exp := iat.Add(c.TTL)

	claims := AccessClaims{
		Name:      sub.Name,
		SessionID: sub.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(sub.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    c.Issuer,
			Audience:  jwt.ClaimStrings{c.Audience},
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Decode checks the signature and exp only. Issuer and audience are left to
// the caller, see VerifyAudience.
func (c *Codec) Decode(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return c.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !tkn.Valid {
		return nil, ErrDecode
	}
	return &claims, nil
}

func (c *Codec) VerifyAudience(claims *AccessClaims) bool {
	if claims.Issuer != c.Issuer {
		return false
	}
	for _, aud := range claims.Audience {
		if aud == c.Audience {
			return true
		}
	}
	return false
}
