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

// SessionRepository implements auth.SessionRepository in memory.
type SessionRepository struct {
	s *Store
}

// Create stores a session. The owning user must exist.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.users[session.UserID]; !ok {
		return oops.Code("SESSION_CREATE_FAILED").
			With("user_id", session.UserID).
			Errorf("user does not exist")
	}
	for _, existing := range r.s.sessions {
		if existing.TokenHash == session.TokenHash {
			return oops.Code("SESSION_CREATE_FAILED").Errorf("duplicate token hash")
		}
	}
	r.s.sessions[session.ID] = *session
	return nil
}

// GetByTokenHash retrieves a session by token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	defer r.s.lock(ctx)()

	for _, sess := range r.s.sessions {
		if sess.TokenHash == tokenHash {
			return &sess, nil
		}
	}
	return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// UpdateLastUsed sets LastUsedAt.
func (r *SessionRepository) UpdateLastUsed(ctx context.Context, id ulid.ULID, at time.Time) error {
	defer r.s.lock(ctx)()

	sess, ok := r.s.sessions[id]
	if !ok {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	sess.LastUsedAt = at
	r.s.sessions[id] = sess
	return nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.sessions[id]; !ok {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	delete(r.s.sessions, id)
	return nil
}

// DeleteByUser removes every session of a user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for id, sess := range r.s.sessions {
		if sess.UserID == userID {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes sessions that expired before the given time.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for id, sess := range r.s.sessions {
		if sess.ExpiresAt != nil && sess.ExpiresAt.Before(before) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
