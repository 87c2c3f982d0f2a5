// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// UserRepository implements auth.UserRepository in memory.
type UserRepository struct {
	s *Store
}

// Create stores a user and assigns the next ID.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	defer r.s.lock(ctx)()

	email := auth.NormalizeEmail(user.Email)
	for _, u := range r.s.users {
		if u.Email == email {
			return oops.Code(auth.CodeDuplicateEmail).
				With("email", email).
				Wrap(auth.ErrDuplicateEmail)
		}
	}

	r.s.nextUserID++
	user.ID = r.s.nextUserID
	user.Email = email
	r.s.users[user.ID] = *user
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	defer r.s.lock(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return &u, nil
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	defer r.s.lock(ctx)()

	email = auth.NormalizeEmail(email)
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// UpdatePassword replaces the stored hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	defer r.s.lock(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	r.s.users[id] = u
	return nil
}

// Delete removes a user and everything that references it.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.users[id]; !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	delete(r.s.users, id)
	for sid, sess := range r.s.sessions {
		if sess.UserID == id {
			delete(r.s.sessions, sid)
		}
	}
	for rid, reset := range r.s.resets {
		if reset.UserID == id {
			delete(r.s.resets, rid)
		}
	}
	return nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
