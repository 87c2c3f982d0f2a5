// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides in-process implementations of the auth
// repositories. State is lost on restart; it backs tests and the memory
// store mode of the server.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/authgate/internal/auth"
)

type txKey struct{}

// Store holds users, sessions, and reset requests behind one mutex.
// A transaction holds the mutex for its whole duration, so transactions are
// serializable with respect to every other operation on the store.
type Store struct {
	mu         sync.Mutex
	users      map[int64]auth.User
	nextUserID int64
	sessions   map[ulid.ULID]auth.Session
	resets     map[ulid.ULID]auth.PasswordReset
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:    make(map[int64]auth.User),
		sessions: make(map[ulid.ULID]auth.Session),
		resets:   make(map[ulid.ULID]auth.PasswordReset),
	}
}

// Users returns the store's auth.UserRepository.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Sessions returns the store's auth.SessionRepository.
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s: s} }

// Resets returns the store's auth.PasswordResetRepository.
func (s *Store) Resets() *PasswordResetRepository { return &PasswordResetRepository{s: s} }

// Transactor returns an auth.Transactor over the store.
func (s *Store) Transactor() *Transactor { return &Transactor{s: s} }

// lock acquires the mutex unless ctx already belongs to a transaction on s.
func (s *Store) lock(ctx context.Context) func() {
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == s { //nolint:errcheck // type assertion
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	users      map[int64]auth.User
	nextUserID int64
	sessions   map[ulid.ULID]auth.Session
	resets     map[ulid.ULID]auth.PasswordReset
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		users:      maps.Clone(s.users),
		nextUserID: s.nextUserID,
		sessions:   maps.Clone(s.sessions),
		resets:     maps.Clone(s.resets),
	}
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.nextUserID = snap.nextUserID
	s.sessions = snap.sessions
	s.resets = snap.resets
}

// Transactor implements auth.Transactor for a Store. Changes made by fn are
// discarded when it returns an error.
type Transactor struct {
	s *Store
}

// InTransaction runs fn with exclusive access to the store. Nested calls
// join the outer transaction.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == t.s { //nolint:errcheck // type assertion
		return fn(ctx)
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	snap := t.s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, t.s)); err != nil {
		t.s.restore(snap)
		return err
	}
	return nil
}

var _ auth.Transactor = (*Transactor)(nil)
