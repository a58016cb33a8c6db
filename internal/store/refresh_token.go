package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/movielist/apiserver/internal/db"
	"github.com/movielist/apiserver/types"
)

// RefreshTokenRepository persists hashed refresh tokens and performs
// single-use rotation.
type RefreshTokenRepository struct {
	db *sql.DB
}

func NewRefreshTokenRepository(conn *sql.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: conn}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token types.RefreshToken) (types.RefreshToken, error) {
	return insertRefreshToken(ctx, r.db, token)
}

// Rotate revokes the token identified by oldHash and stores next for the same
// user, in one transaction, returning the new token and the owning user as
// read inside that transaction. The revoke is a conditional update, so of
// several concurrent callers presenting the same token exactly one succeeds;
// the others observe ErrRevoked. ErrNotFound and ErrExpired are returned for
// unknown and stale tokens.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash string, next types.RefreshToken, now time.Time) (types.RefreshToken, types.User, error) {
	var (
		rotated types.RefreshToken
		owner   types.User
	)
	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx db.DBTX) error {
		const revokeQuery = `
			UPDATE refresh_tokens rt
			SET revoked_at = $2
			FROM users u
			WHERE rt.token_hash = $1
			  AND rt.revoked_at IS NULL
			  AND rt.expires_at > $2
			  AND u.id = rt.user_id
			RETURNING u.id, u.username, u.email, u.name, u.role, u.password_hash, u.created_at, u.updated_at`
		var err error
		owner, err = scanUser(tx.QueryRowContext(ctx, revokeQuery, oldHash, now))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return classifyRefreshToken(ctx, tx, oldHash, now)
			}
			return err
		}

		next.UserID = owner.ID
		rotated, err = insertRefreshToken(ctx, tx, next)
		return err
	})
	if err != nil {
		return types.RefreshToken{}, types.User{}, err
	}
	return rotated, owner, nil
}

// Revoke marks a single token revoked. Revoking an already revoked token is a no-op.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	const query = `
		UPDATE refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE token_hash = $1`
	result, err := r.db.ExecContext(ctx, query, tokenHash, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeAllForUser revokes every live token of a user and returns how many were revoked.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID int, now time.Time) (int64, error) {
	const query = `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return result.RowsAffected()
}

// DeleteExpired removes tokens that expired before the given instant.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return result.RowsAffected()
}

func insertRefreshToken(ctx context.Context, q db.DBTX, token types.RefreshToken) (types.RefreshToken, error) {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := q.QueryRowContext(ctx, query, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt).Scan(&token.ID); err != nil {
		if isUniqueViolation(err) {
			return types.RefreshToken{}, ErrConflict
		}
		return types.RefreshToken{}, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

func classifyRefreshToken(ctx context.Context, q db.DBTX, tokenHash string, now time.Time) error {
	const query = `SELECT revoked_at, expires_at FROM refresh_tokens WHERE token_hash = $1`
	var revokedAt sql.NullTime
	var expiresAt time.Time
	if err := q.QueryRowContext(ctx, query, tokenHash).Scan(&revokedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	if revokedAt.Valid {
		return ErrRevoked
	}
	if !now.Before(expiresAt) {
		return ErrExpired
	}
	// Still live here means a concurrent rotation has not committed yet.
	return ErrRevoked
}
