package types

import "time"

// RecoveryChallenge is an outstanding one-time passcode sent to a user's email.
type RecoveryChallenge struct {
	// ID is the unique identifier of the challenge.
	ID int64 `json:"id" db:"id"`

	// UserID references the user whose password may be reset.
	UserID int `json:"user_id" db:"user_id"`

	// CodeHash is the keyed SHA-256 of the six digit code.
	CodeHash string `json:"-" db:"code_hash"`

	// ExpiresAt is created-at plus the recovery window (20 minutes by default).
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// VerifiedAt is set once the code has been presented successfully.
	// Only a verified challenge allows the password to be changed.
	VerifiedAt *time.Time `json:"verified_at,omitempty" db:"verified_at"`

	// CreatedAt is the timestamp at which the challenge was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Expired reports whether the challenge window has elapsed at now.
func (c RecoveryChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
