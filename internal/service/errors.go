package service

import (
	"errors"

	"github.com/Skotchmaster/ticket_reservation/pkg/validate"
)

var (
	ErrValidation         = validate.ErrValidation
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingToken       = errors.New("refresh token not provided")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrSessionExpired     = errors.New("session expired or invalid")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrTooManyAttempts    = errors.New("too many login attempts")
)
