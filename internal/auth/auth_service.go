// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/authgate/pkg/errutil"
)

var tracer = otel.Tracer("authgate/auth")

// Transactor runs fn in a single atomic unit of work. Repositories called
// with the context passed to fn participate in it.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
}

// LoginInput is the payload of a login request. UserAgent and IPAddress
// are recorded on the issued session.
type LoginInput struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	UserAgent string `json:"-"`
	IPAddress string `json:"-"`
}

// LoginResult is returned by a successful login. Token is shown once.
type LoginResult struct {
	User    *User
	Session *Session
	Token   string
}

// ResetInput is the payload of a reset completion. ID and Email must match
// the identity the token was issued for.
type ResetInput struct {
	Token                string `json:"token"`
	ID                   int64  `json:"id" validate:"gt=0"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type forgotInput struct {
	Email string `json:"email" validate:"required,email"`
}

// Service orchestrates registration, login, logout, and password reset.
type Service struct {
	users         UserRepository
	sessions      *SessionService
	resets        *PasswordResetService
	hasher        PasswordHasher
	tx            Transactor
	policy        PasswordPolicy
	revokeOnReset bool
	logger        *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures a Service during construction.
type ServiceOption func(*Service)

// WithPasswordPolicy sets the strength rules for new passwords.
func WithPasswordPolicy(p PasswordPolicy) ServiceOption {
	return func(s *Service) {
		s.policy = p
	}
}

// WithRevokeSessionsOnReset controls whether a password reset signs the user
// out everywhere. Enabled by default.
func WithRevokeSessionsOnReset(revoke bool) ServiceOption {
	return func(s *Service) {
		s.revokeOnReset = revoke
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewAuthService creates a Service. Every dependency is required.
func NewAuthService(
	users UserRepository,
	sessions *SessionService,
	resets *PasswordResetService,
	hasher PasswordHasher,
	tx Transactor,
	opts ...ServiceOption,
) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session service is required")
	}
	if resets == nil {
		return nil, oops.Errorf("password reset service is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}

	s := &Service{
		users:         users,
		sessions:      sessions,
		resets:        resets,
		hasher:        hasher,
		tx:            tx,
		policy:        DefaultPasswordPolicy(),
		revokeOnReset: true,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// dummyPasswordHash is verified when no user matches so that response time
// does not reveal whether an email is registered. It never matches.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$2a$10$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// timingHash returns a hash in the configured algorithm, so verifying it
// costs the same as verifying a real one.
func (s *Service) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("authgate-timing-equalizer")
		if err != nil {
			h = dummyPasswordHash
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Register creates a new account with RoleUser.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() { finish(span, "register", err) }()

	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	if err := validateInput(in, map[string]string{"password": s.policyMessage(in.Password)}); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err = NewUser(in.Name, in.Email, hash)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, oops.Code(CodeDuplicateEmail).
				With("fields", map[string]string{"email": "The email has already been taken."}).
				Wrap(ErrDuplicateEmail)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "persist user").
			Wrap(err)
	}

	span.SetAttributes(attribute.Int64("user.id", user.ID))
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and issues a session token. Unknown emails and
// wrong passwords produce the same AUTH_INVALID_CREDENTIALS error.
func (s *Service) Login(ctx context.Context, in LoginInput) (result *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() { finish(span, "login", err) }()

	in.Email = NormalizeEmail(in.Email)
	if err := validateInput(in, nil); err != nil {
		return nil, err
	}

	user, lookupErr := s.users.GetByEmail(ctx, in.Email)
	userExists := lookupErr == nil
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	targetHash := s.timingHash()
	if userExists {
		targetHash = user.PasswordHash
	}

	// Always verify so both branches take comparable time.
	valid, verifyErr := s.hasher.Verify(in.Password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID).
			Wrap(verifyErr)
	}
	if !userExists || !valid {
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, in.Password)
	}

	token, session, err := s.sessions.Issue(ctx, user.ID, in.UserAgent, in.IPAddress)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue session").
			Wrap(err)
	}

	span.SetAttributes(attribute.Int64("user.id", user.ID))
	return &LoginResult{User: user, Session: session, Token: token}, nil
}

// upgradeHash rehashes with the current algorithm. Failures are logged only.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to rehash password", err)
		return
	}
	if err := s.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to store upgraded password hash", err)
		return
	}
	user.PasswordHash = newHash
}

// Logout revokes the presented token. Missing or unknown tokens succeed.
func (s *Service) Logout(ctx context.Context, token string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.logout")
	defer func() { finish(span, "logout", err) }()

	return s.sessions.Revoke(ctx, token)
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, *Session, error) {
	session, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, unauthorized()
		}
		return nil, nil, oops.Code("AUTH_AUTHENTICATE_FAILED").
			With("operation", "get user by id").
			With("user_id", session.UserID).
			Wrap(err)
	}
	return user, session, nil
}

// ForgotPassword starts the reset flow for an email.
func (s *Service) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.forgot_password")
	defer func() { finish(span, "forgot_password", err) }()

	in := forgotInput{Email: NormalizeEmail(email)}
	if err := validateInput(in, nil); err != nil {
		return err
	}
	return s.resets.RequestReset(ctx, in.Email)
}

// CheckResetToken reports whether a reset token is currently usable without
// consuming it.
func (s *Service) CheckResetToken(ctx context.Context, token string) (bool, error) {
	err := s.resets.ValidateToken(ctx, token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return false, nil
	default:
		return false, err
	}
}

// ResetPassword consumes a reset token and sets the new password. Token
// consumption, the password update, and session revocation commit together.
func (s *Service) ResetPassword(ctx context.Context, in ResetInput) (err error) {
	ctx, span := tracer.Start(ctx, "auth.reset_password")
	defer func() { finish(span, "reset_password", err) }()

	in.Email = NormalizeEmail(in.Email)
	passwordMsg := s.policyMessage(in.Password)
	if passwordMsg == "" && in.Password != "" && in.Password != in.PasswordConfirmation {
		passwordMsg = "The password field confirmation does not match."
	}
	if err := validateInput(in, map[string]string{"password": passwordMsg}); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return oops.Code("AUTH_RESET_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	return s.tx.InTransaction(ctx, func(ctx context.Context) error {
		ref, err := s.resets.ValidateAndConsume(ctx, in.Token, in.Email, in.ID)
		if err != nil {
			return err
		}

		if err := s.users.UpdatePassword(ctx, ref.ID, hash); err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalidResetToken()
			}
			return oops.Code("AUTH_RESET_FAILED").
				With("operation", "update password").
				With("user_id", ref.ID).
				Wrap(err)
		}

		if s.revokeOnReset {
			n, err := s.sessions.RevokeAll(ctx, ref.ID)
			if err != nil {
				return err
			}
			s.logger.InfoContext(ctx, "password reset", "user_id", ref.ID, "revoked_sessions", n)
			return nil
		}

		s.logger.InfoContext(ctx, "password reset", "user_id", ref.ID)
		return nil
	})
}

// policyMessage returns the policy violation for a non-empty password.
// Empty passwords are reported by the required tag instead.
func (s *Service) policyMessage(password string) string {
	if password == "" {
		return ""
	}
	return s.policy.Check(password)
}

// finish records the outcome on the span and in metrics.
func finish(span trace.Span, operation string, err error) {
	recordOperation(operation, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Code(err))
	}
	span.End()
}
