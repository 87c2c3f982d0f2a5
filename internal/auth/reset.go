// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultResetTTL is how long a reset token stays usable.
const DefaultResetTTL = 60 * time.Minute

// ResetState is the lifecycle state of a reset token at a point in time.
type ResetState string

// Reset token states. Only Consumed is stored; Expired and Superseded are
// derived from time and from newer requests for the same user.
const (
	ResetActive     ResetState = "active"
	ResetConsumed   ResetState = "consumed"
	ResetExpired    ResetState = "expired"
	ResetSuperseded ResetState = "superseded"
)

// PasswordReset is a single-use reset token bound to a user identity.
type PasswordReset struct {
	ID         ulid.ULID
	UserID     int64
	Email      string
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// NewPasswordReset creates a validated PasswordReset bound to (userID, email).
func NewPasswordReset(userID int64, email, tokenHash string, now, expiresAt time.Time) (*PasswordReset, error) {
	if userID <= 0 {
		return nil, oops.Code("RESET_INVALID_USER").Errorf("user ID must be positive")
	}
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("RESET_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(now) {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("expiry must be after creation")
	}

	return &PasswordReset{
		ID:        ulid.Make(),
		UserID:    userID,
		Email:     email,
		TokenHash: tokenHash,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// StateAt returns the stored or time-derived state. Supersession needs the
// latest record for the user and is checked by the service.
func (r *PasswordReset) StateAt(t time.Time) ResetState {
	if r.ConsumedAt != nil {
		return ResetConsumed
	}
	if t.After(r.ExpiresAt) {
		return ResetExpired
	}
	return ResetActive
}

// PasswordResetRepository manages password reset persistence.
type PasswordResetRepository interface {
	// Create stores a new password reset request.
	Create(ctx context.Context, reset *PasswordReset) error

	// GetByTokenHash retrieves a reset request by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*PasswordReset, error)

	// GetLatestByUser retrieves the newest reset request for a user, ordered
	// by creation time then ID.
	GetLatestByUser(ctx context.Context, userID int64) (*PasswordReset, error)

	// Consume marks the reset consumed at the given time. It succeeds only if
	// the reset is unconsumed, unexpired at that time, and the newest for its
	// user; otherwise it returns ErrNotFound and changes nothing.
	Consume(ctx context.Context, id ulid.ULID, at time.Time) error

	// Delete removes a password reset request.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByUser removes all reset requests for a user.
	DeleteByUser(ctx context.Context, userID int64) error

	// DeleteExpired removes reset requests that expired before the given time
	// or were consumed, and returns the count.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
