// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// PasswordResetRepository implements auth.PasswordResetRepository in memory.
type PasswordResetRepository struct {
	s *Store
}

// Create stores a reset request. The owning user must exist.
func (r *PasswordResetRepository) Create(ctx context.Context, reset *auth.PasswordReset) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.users[reset.UserID]; !ok {
		return oops.Code("RESET_CREATE_FAILED").
			With("user_id", reset.UserID).
			Errorf("user does not exist")
	}
	for _, existing := range r.s.resets {
		if existing.TokenHash == reset.TokenHash {
			return oops.Code("RESET_CREATE_FAILED").Errorf("duplicate token hash")
		}
	}
	r.s.resets[reset.ID] = *reset
	return nil
}

// GetByTokenHash retrieves a reset by token hash.
func (r *PasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordReset, error) {
	defer r.s.lock(ctx)()

	for _, reset := range r.s.resets {
		if reset.TokenHash == tokenHash {
			return &reset, nil
		}
	}
	return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// GetLatestByUser retrieves the newest reset for a user.
func (r *PasswordResetRepository) GetLatestByUser(ctx context.Context, userID int64) (*auth.PasswordReset, error) {
	defer r.s.lock(ctx)()

	latest, ok := r.latestLocked(userID)
	if !ok {
		return nil, oops.Code("RESET_NOT_FOUND").With("user_id", userID).Wrap(auth.ErrNotFound)
	}
	return &latest, nil
}

// Consume marks a reset consumed if it is unconsumed, unexpired, and the
// newest for its user.
func (r *PasswordResetRepository) Consume(ctx context.Context, id ulid.ULID, at time.Time) error {
	defer r.s.lock(ctx)()

	reset, ok := r.s.resets[id]
	if !ok || reset.ConsumedAt != nil || at.After(reset.ExpiresAt) {
		return oops.Code("RESET_NOT_CONSUMABLE").With("reset_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if latest, _ := r.latestLocked(reset.UserID); latest.ID != id {
		return oops.Code("RESET_NOT_CONSUMABLE").With("reset_id", id.String()).Wrap(auth.ErrNotFound)
	}

	reset.ConsumedAt = &at
	r.s.resets[id] = reset
	return nil
}

// Delete removes a reset.
func (r *PasswordResetRepository) Delete(ctx context.Context, id ulid.ULID) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.resets[id]; !ok {
		return oops.Code("RESET_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	delete(r.s.resets, id)
	return nil
}

// DeleteByUser removes every reset of a user.
func (r *PasswordResetRepository) DeleteByUser(ctx context.Context, userID int64) error {
	defer r.s.lock(ctx)()

	for id, reset := range r.s.resets {
		if reset.UserID == userID {
			delete(r.s.resets, id)
		}
	}
	return nil
}

// DeleteExpired removes resets that expired before the given time or were
// consumed.
func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for id, reset := range r.s.resets {
		if reset.ConsumedAt != nil || reset.ExpiresAt.Before(before) {
			delete(r.s.resets, id)
			n++
		}
	}
	return n, nil
}

// latestLocked orders by CreatedAt then ID, newest first. Caller holds the lock.
func (r *PasswordResetRepository) latestLocked(userID int64) (auth.PasswordReset, bool) {
	var (
		latest auth.PasswordReset
		found  bool
	)
	for _, reset := range r.s.resets {
		if reset.UserID != userID {
			continue
		}
		if !found ||
			reset.CreatedAt.After(latest.CreatedAt) ||
			(reset.CreatedAt.Equal(latest.CreatedAt) && reset.ID.Compare(latest.ID) > 0) {
			latest = reset
			found = true
		}
	}
	return latest, found
}

var _ auth.PasswordResetRepository = (*PasswordResetRepository)(nil)
