// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authgate/pkg/errutil"
)

// ResetMessage is what a ResetNotifier delivers to the account holder.
type ResetMessage struct {
	Email     string
	Name      string
	URL       string
	ExpiresIn time.Duration
}

// ResetNotifier delivers reset links out of band.
type ResetNotifier interface {
	SendResetLink(ctx context.Context, msg ResetMessage) error
}

// UserRef identifies the account a consumed reset token belonged to.
type UserRef struct {
	ID    int64
	Email string
}

// PasswordResetService issues, validates, and consumes reset tokens.
type PasswordResetService struct {
	users         UserRepository
	resets        PasswordResetRepository
	notifier      ResetNotifier
	ttl           time.Duration
	resetURL      string
	revealUnknown bool
	pacer         *latencyPacer
	now           func() time.Time
	logger        *slog.Logger
}

// ResetOption configures a PasswordResetService during construction.
type ResetOption func(*PasswordResetService)

// WithResetTTL sets how long issued tokens stay usable.
func WithResetTTL(ttl time.Duration) ResetOption {
	return func(s *PasswordResetService) {
		s.ttl = ttl
	}
}

// WithResetURL sets the client page the emailed link points at. The token,
// email, and id are appended as query parameters.
func WithResetURL(u string) ResetOption {
	return func(s *PasswordResetService) {
		s.resetURL = u
	}
}

// WithRevealUnknownEmail makes RequestReset fail for unregistered emails
// instead of silently succeeding.
func WithRevealUnknownEmail(reveal bool) ResetOption {
	return func(s *PasswordResetService) {
		s.revealUnknown = reveal
	}
}

// WithUnknownEmailDelay sets how long a request for an unknown email takes
// until a real delivery has been timed. After that the delay follows the
// observed delivery time.
func WithUnknownEmailDelay(d time.Duration) ResetOption {
	return func(s *PasswordResetService) {
		s.pacer = newLatencyPacer(d)
	}
}

// WithResetClock overrides the time source.
func WithResetClock(now func() time.Time) ResetOption {
	return func(s *PasswordResetService) {
		s.now = now
	}
}

// WithResetLogger sets the logger.
func WithResetLogger(logger *slog.Logger) ResetOption {
	return func(s *PasswordResetService) {
		s.logger = logger
	}
}

// NewPasswordResetService creates a PasswordResetService.
func NewPasswordResetService(
	users UserRepository,
	resets PasswordResetRepository,
	notifier ResetNotifier,
	opts ...ResetOption,
) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if resets == nil {
		return nil, oops.Errorf("password reset repository is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("reset notifier is required")
	}

	s := &PasswordResetService{
		users:    users,
		resets:   resets,
		notifier: notifier,
		ttl:      DefaultResetTTL,
		resetURL: "http://localhost:3000/reset-password",
		pacer:    newLatencyPacer(DefaultUnknownEmailDelay),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.ttl <= 0 {
		return nil, oops.Errorf("reset TTL must be positive")
	}
	if _, err := url.Parse(s.resetURL); err != nil {
		return nil, oops.With("reset_url", s.resetURL).Wrap(err)
	}
	return s, nil
}

// RequestReset issues a token for the account with this email and sends the
// reset link. Unknown emails succeed without side effects unless the service
// was built with WithRevealUnknownEmail; they take about as long as a real
// delivery. If the link cannot be sent the token is discarded.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if s.revealUnknown {
				return oops.Code(CodeResetUnknownEmail).Wrap(ErrUnknownEmail)
			}
			s.logger.DebugContext(ctx, "reset requested for unknown email")
			s.pacer.wait(ctx)
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "GetByEmail").
			Wrap(err)
	}

	started := time.Now()
	token, hash, err := generateToken("RESET_TOKEN_GENERATE_FAILED")
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "GenerateToken").
			Wrap(err)
	}

	now := s.now()
	reset, err := NewPasswordReset(user.ID, user.Email, hash, now, now.Add(s.ttl))
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "NewPasswordReset").
			Wrap(err)
	}

	if err := s.resets.Create(ctx, reset); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "Create").
			With("user_id", user.ID).
			Wrap(err)
	}

	msg := ResetMessage{
		Email:     user.Email,
		Name:      user.Name,
		URL:       s.buildResetURL(token, user),
		ExpiresIn: s.ttl,
	}
	if err := s.notifier.SendResetLink(ctx, msg); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to send reset link", err)
		if delErr := s.resets.Delete(ctx, reset.ID); delErr != nil && !errors.Is(delErr, ErrNotFound) {
			errutil.LogErrorContext(ctx, s.logger, "failed to discard unsent reset token", delErr)
		}
		ResetTokens.WithLabelValues("notify_failed").Inc()
		return oops.Code(CodeResetNotifyFailed).
			With("user_id", user.ID).
			With("cause", err.Error()).
			Wrap(ErrNotifyFailed)
	}

	s.pacer.observe(time.Since(started))
	ResetTokens.WithLabelValues("issued").Inc()
	s.logger.InfoContext(ctx, "reset link sent",
		"user_id", user.ID,
		"reset_id", reset.ID.String(),
		"expires_at", reset.ExpiresAt,
	)
	return nil
}

func (s *PasswordResetService) buildResetURL(token string, user *User) string {
	u, err := url.Parse(s.resetURL)
	if err != nil {
		// Validated in the constructor.
		u = &url.URL{Path: s.resetURL}
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("email", user.Email)
	q.Set("id", strconv.FormatInt(user.ID, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// ValidateToken reports whether the token could currently be used. It never
// changes state. All failures return RESET_TOKEN_INVALID.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) error {
	_, _, err := s.loadActive(ctx, token)
	return err
}

// ValidateAndConsume checks the token against the claimed identity and marks
// it consumed. Exactly one concurrent caller can consume a given token; the
// rest get RESET_TOKEN_INVALID. Call it inside the transaction that applies
// the new password so that a failed update also restores the token.
func (s *PasswordResetService) ValidateAndConsume(ctx context.Context, token, email string, id int64) (UserRef, error) {
	reset, user, err := s.loadActive(ctx, token)
	if err != nil {
		return UserRef{}, err
	}

	if reset.UserID != id || reset.Email != NormalizeEmail(email) {
		return UserRef{}, s.reject(ctx, "identity mismatch")
	}

	if err := s.resets.Consume(ctx, reset.ID, s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return UserRef{}, s.reject(ctx, "lost consume race")
		}
		return UserRef{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "Consume").
			With("reset_id", reset.ID.String()).
			Wrap(err)
	}

	ResetTokens.WithLabelValues("consumed").Inc()
	return UserRef{ID: user.ID, Email: user.Email}, nil
}

// PurgeExpired deletes expired and consumed reset records.
func (s *PasswordResetService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.resets.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, oops.Code("RESET_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}

// loadActive resolves a token to an active, latest reset whose owner still
// exists with the bound email.
func (s *PasswordResetService) loadActive(ctx context.Context, token string) (*PasswordReset, *User, error) {
	if token == "" {
		return nil, nil, s.reject(ctx, "empty token")
	}

	reset, err := s.resets.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, s.reject(ctx, "unknown token")
		}
		return nil, nil, oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "GetByTokenHash").
			Wrap(err)
	}

	if state := reset.StateAt(s.now()); state != ResetActive {
		return nil, nil, s.reject(ctx, string(state))
	}

	latest, err := s.resets.GetLatestByUser(ctx, reset.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, s.reject(ctx, "unknown token")
		}
		return nil, nil, oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "GetLatestByUser").
			Wrap(err)
	}
	if latest.ID != reset.ID {
		return nil, nil, s.reject(ctx, string(ResetSuperseded))
	}

	user, err := s.users.GetByID(ctx, reset.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, s.reject(ctx, "owner deleted")
		}
		return nil, nil, oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "GetByID").
			Wrap(err)
	}
	if NormalizeEmail(user.Email) != reset.Email {
		return nil, nil, s.reject(ctx, "owner email changed")
	}

	return reset, user, nil
}

// reject logs the specific reason and returns the generic token error.
func (s *PasswordResetService) reject(ctx context.Context, reason string) error {
	ResetTokens.WithLabelValues("rejected").Inc()
	s.logger.DebugContext(ctx, "reset token rejected", "reason", reason)
	return invalidResetToken()
}
