package types

import "time"

// TokenPair is returned by register, login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken is a persisted, single-use renewal credential.
// Only the SHA-256 hash of the token value is stored.
type RefreshToken struct {
	// ID is the unique identifier of the stored record.
	ID int64 `json:"id" db:"id"`

	// UserID references the owning user.
	UserID int `json:"user_id" db:"user_id"`

	// TokenHash is the hex SHA-256 of the opaque token handed to the client.
	TokenHash string `json:"-" db:"token_hash"`

	// ExpiresAt is the instant after which the token can no longer be redeemed.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// RevokedAt is set when the token was rotated or logged out.
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`

	// CreatedAt is the timestamp at which the token was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Revoked reports whether the token has been invalidated.
func (t RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
