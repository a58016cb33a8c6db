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

const challengeColumns = `id, user_id, code_hash, expires_at, verified_at, created_at`

// RecoveryRepository persists outstanding password recovery challenges.
type RecoveryRepository struct {
	db *sql.DB
}

func NewRecoveryRepository(conn *sql.DB) *RecoveryRepository {
	return &RecoveryRepository{db: conn}
}

// Replace stores challenge and drops every earlier challenge of the same user,
// leaving at most one live code per account.
func (r *RecoveryRepository) Replace(ctx context.Context, challenge types.RecoveryChallenge) (types.RecoveryChallenge, error) {
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now()
	}

	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx db.DBTX) error {
		const deleteQuery = `DELETE FROM recovery_challenges WHERE user_id = $1`
		if _, err := tx.ExecContext(ctx, deleteQuery, challenge.UserID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		const insertQuery = `
			INSERT INTO recovery_challenges (user_id, code_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id`
		if err := tx.QueryRowContext(
			ctx,
			insertQuery,
			challenge.UserID,
			challenge.CodeHash,
			challenge.ExpiresAt,
			challenge.CreatedAt,
		).Scan(&challenge.ID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.RecoveryChallenge{}, err
	}
	return challenge, nil
}

// FindByCode returns the newest challenge of userID carrying codeHash.
func (r *RecoveryRepository) FindByCode(ctx context.Context, userID int, codeHash string) (types.RecoveryChallenge, error) {
	const query = `
		SELECT ` + challengeColumns + `
		FROM recovery_challenges
		WHERE user_id = $1 AND code_hash = $2
		ORDER BY created_at DESC
		LIMIT 1`
	var challenge types.RecoveryChallenge
	var verifiedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID, codeHash).Scan(
		&challenge.ID,
		&challenge.UserID,
		&challenge.CodeHash,
		&challenge.ExpiresAt,
		&verifiedAt,
		&challenge.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RecoveryChallenge{}, ErrNotFound
		}
		return types.RecoveryChallenge{}, fmt.Errorf("db error: %w", err)
	}
	if verifiedAt.Valid {
		challenge.VerifiedAt = &verifiedAt.Time
	}
	return challenge, nil
}

func (r *RecoveryRepository) MarkVerified(ctx context.Context, id int64, now time.Time) error {
	const query = `UPDATE recovery_challenges SET verified_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, now)
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

func (r *RecoveryRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM recovery_challenges WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ResetPassword consumes the verified, unexpired challenge of userID, stores
// passwordHash and revokes every live refresh token of the user in one
// transaction. It returns the number of revoked tokens. ErrNotFound means no
// verified challenge was outstanding; nothing is changed then, and any later
// failure rolls the challenge back so the user can retry.
func (r *RecoveryRepository) ResetPassword(ctx context.Context, userID int, passwordHash string, now time.Time) (int64, error) {
	var revoked int64
	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx db.DBTX) error {
		const consumeQuery = `
			DELETE FROM recovery_challenges
			WHERE user_id = $1
			  AND EXISTS (
				SELECT 1 FROM recovery_challenges
				WHERE user_id = $1 AND verified_at IS NOT NULL AND expires_at > $2
			  )`
		if err := execOne(ctx, tx, consumeQuery, userID, now); err != nil {
			return err
		}

		const passwordQuery = `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
		if err := execOne(ctx, tx, passwordQuery, passwordHash, now, userID); err != nil {
			return err
		}

		const revokeQuery = `
			UPDATE refresh_tokens
			SET revoked_at = $2
			WHERE user_id = $1 AND revoked_at IS NULL`
		result, err := tx.ExecContext(ctx, revokeQuery, userID, now)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		revoked, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return revoked, nil
}

// DeleteExpired removes challenges whose window closed before the given instant.
func (r *RecoveryRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM recovery_challenges WHERE expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return result.RowsAffected()
}
