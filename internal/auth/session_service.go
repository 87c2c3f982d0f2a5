// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authgate/pkg/errutil"
)

// SessionService mints, resolves, and revokes opaque bearer tokens.
type SessionService struct {
	repo   SessionRepository
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// SessionOption configures a SessionService during construction.
type SessionOption func(*SessionService)

// WithSessionTTL sets the session lifetime. Zero means sessions never expire
// and live until revoked.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionService) {
		s.ttl = ttl
	}
}

// WithSessionClock overrides the time source.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionService) {
		s.now = now
	}
}

// WithSessionLogger sets the logger used for best-effort failures.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *SessionService) {
		s.logger = logger
	}
}

// NewSessionService creates a SessionService. Returns an error if repo is nil
// or the TTL is negative.
func NewSessionService(repo SessionRepository, opts ...SessionOption) (*SessionService, error) {
	if repo == nil {
		return nil, oops.Errorf("session repository is required")
	}
	s := &SessionService{
		repo:   repo,
		ttl:    DefaultSessionTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl < 0 {
		return nil, oops.Errorf("session TTL cannot be negative")
	}
	return s, nil
}

// Issue creates a session for the user and returns the plaintext token. The
// token is not recoverable afterwards.
func (s *SessionService) Issue(ctx context.Context, userID int64, userAgent, ipAddress string) (string, *Session, error) {
	token, tokenHash, err := generateToken("SESSION_TOKEN_GENERATE_FAILED")
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	var expiresAt *time.Time
	if s.ttl > 0 {
		exp := now.Add(s.ttl)
		expiresAt = &exp
	}

	session, err := NewSession(userID, tokenHash, userAgent, ipAddress, now, expiresAt)
	if err != nil {
		return "", nil, oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return "", nil, oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "persist session").
			With("user_id", userID).
			Wrap(err)
	}

	Sessions.WithLabelValues("issued").Inc()
	return token, session, nil
}

// Resolve returns the live session for a token. Every failure to authenticate
// is reported as AUTH_UNAUTHORIZED.
func (s *SessionService) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, unauthorized()
	}

	session, err := s.repo.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, unauthorized()
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	now := s.now()
	if session.IsExpiredAt(now) {
		return nil, unauthorized()
	}

	if err := s.repo.UpdateLastUsed(ctx, session.ID, now); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to update session last used", err)
	} else {
		session.LastUsedAt = now
	}

	return session, nil
}

// Revoke deletes the session for a token. Unknown and empty tokens succeed.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	session, err := s.repo.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if err := s.repo.Delete(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "delete session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}

	Sessions.WithLabelValues("revoked").Inc()
	return nil
}

// RevokeAll deletes every session of a user and returns how many there were.
func (s *SessionService) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	Sessions.WithLabelValues("revoked").Add(float64(n))
	return n, nil
}

// PurgeExpired deletes expired sessions.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}
