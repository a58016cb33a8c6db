package services

import (
	"errors"

	"github.com/movielist/apiserver/internal/auth"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicateIdentity  = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrTokenMalformed = auth.ErrTokenMalformed
	ErrTokenExpired   = auth.ErrTokenExpired
	ErrTokenRevoked   = errors.New("refresh token revoked")
	ErrTokenNotFound  = errors.New("refresh token not found")

	ErrUnknownEmail         = errors.New("no account for email")
	ErrInvalidChallenge     = errors.New("invalid recovery code")
	ErrChallengeExpired     = errors.New("recovery code expired")
	ErrChallengeNotVerified = errors.New("recovery code not verified")
	ErrPasswordMismatch     = errors.New("passwords do not match")
	ErrTooManyAttempts      = errors.New("too many attempts")

	ErrNotFound = errors.New("not found")
)
