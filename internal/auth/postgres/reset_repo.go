// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

const resetColumns = `id, user_id, email, token_hash, created_at, expires_at, consumed_at`

// PasswordResetRepository implements auth.PasswordResetRepository using PostgreSQL.
type PasswordResetRepository struct {
	pool poolIface
}

// NewPasswordResetRepository creates a new PasswordResetRepository.
func NewPasswordResetRepository(pool poolIface) *PasswordResetRepository {
	return &PasswordResetRepository{pool: pool}
}

// Create stores a new password reset request.
func (r *PasswordResetRepository) Create(ctx context.Context, reset *auth.PasswordReset) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO password_resets (id, user_id, email, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, reset.ID.String(), reset.UserID, reset.Email, reset.TokenHash, reset.CreatedAt, reset.ExpiresAt)
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert password_reset").
			With("user_id", reset.UserID).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a reset request by its token hash.
func (r *PasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordReset, error) {
	row := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+resetColumns+` FROM password_resets WHERE token_hash = $1`,
		tokenHash)

	reset, err := scanReset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return reset, nil
}

// GetLatestByUser retrieves the most recent reset request for a user.
func (r *PasswordResetRepository) GetLatestByUser(ctx context.Context, userID int64) (*auth.PasswordReset, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+resetColumns+`
		FROM password_resets
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID)

	reset, err := scanReset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").
			With("user_id", userID).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return reset, nil
}

// Consume marks the reset consumed in a single conditional update. A
// concurrent consumer blocks on the row lock and then sees consumed_at set,
// so at most one caller succeeds.
func (r *PasswordResetRepository) Consume(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE password_resets pr
		SET consumed_at = $2
		WHERE pr.id = $1
		  AND pr.consumed_at IS NULL
		  AND pr.expires_at >= $2
		  AND pr.id = (
			SELECT latest.id FROM password_resets latest
			WHERE latest.user_id = pr.user_id
			ORDER BY latest.created_at DESC, latest.id DESC
			LIMIT 1
		  )
	`, id.String(), at)
	if err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "consume password_reset").
			With("reset_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RESET_NOT_CONSUMABLE").
			With("reset_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a password reset request.
func (r *PasswordResetRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM password_resets WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("RESET_DELETE_FAILED").
			With("operation", "delete password_reset").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RESET_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes all reset requests for a user. Zero rows is not an error.
func (r *PasswordResetRepository) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM password_resets WHERE user_id = $1`, userID)
	if err != nil {
		return oops.Code("RESET_DELETE_BY_USER_FAILED").
			With("operation", "delete password_resets by user").
			With("user_id", userID).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes expired or consumed reset requests and returns the count.
func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM password_resets WHERE expires_at < $1 OR consumed_at IS NOT NULL
	`, before)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired password_resets").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanReset scans a single row into a PasswordReset.
// Callers are responsible for handling pgx.ErrNoRows.
func scanReset(row pgx.Row) (*auth.PasswordReset, error) {
	var (
		idStr string
		reset auth.PasswordReset
	)

	err := row.Scan(
		&idStr,
		&reset.UserID,
		&reset.Email,
		&reset.TokenHash,
		&reset.CreatedAt,
		&reset.ExpiresAt,
		&reset.ConsumedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("RESET_SCAN_FAILED").
			With("operation", "scan password_reset").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_ID").
			With("operation", "parse reset id").
			With("id", idStr).
			Wrap(err)
	}
	reset.ID = id
	return &reset, nil
}

// Compile-time interface check.
var _ auth.PasswordResetRepository = (*PasswordResetRepository)(nil)
