// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/auth/mocks"
	"github.com/holomush/authgate/pkg/errutil"
)

func TestNewPasswordResetService_Validation(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	resets := mocks.NewMockPasswordResetRepository(t)
	notifier := mocks.NewMockResetNotifier(t)

	_, err := auth.NewPasswordResetService(nil, resets, notifier)
	require.Error(t, err)
	_, err = auth.NewPasswordResetService(users, nil, notifier)
	require.Error(t, err)
	_, err = auth.NewPasswordResetService(users, resets, nil)
	require.Error(t, err)
	_, err = auth.NewPasswordResetService(users, resets, notifier, auth.WithResetTTL(0))
	require.Error(t, err)
	_, err = auth.NewPasswordResetService(users, resets, notifier, auth.WithResetURL("://bad"))
	require.Error(t, err)
}

func TestRequestReset_SendsLink(t *testing.T) {
	h := newHarness(t)
	user := h.register(t, "Alice", "alice@example.com", "Password1!")

	require.NoError(t, h.resets.RequestReset(context.Background(), "ALICE@example.com"))
	require.Equal(t, 1, h.outbox.count())

	msg := h.outbox.msgs[0]
	assert.Equal(t, "alice@example.com", msg.Email)
	assert.Equal(t, "Alice", msg.Name)
	assert.Equal(t, auth.DefaultResetTTL, msg.ExpiresIn)
	assert.True(t, strings.HasPrefix(msg.URL, "https://app.example.com/reset-password?"), msg.URL)

	l := parseLink(t, msg.URL)
	assert.Len(t, l.Token, 2*auth.TokenBytes)
	assert.Equal(t, user.ID, l.ID)
	assert.Equal(t, "alice@example.com", l.Email)

	stored, err := h.store.Resets().GetLatestByUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.HashToken(l.Token), stored.TokenHash)
	assert.NotEqual(t, l.Token, stored.TokenHash)
}

func TestRequestReset_UnknownEmail(t *testing.T) {
	t.Run("silent by default", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.resets.RequestReset(context.Background(), "ghost@example.com"))
		assert.Zero(t, h.outbox.count())
	})

	t.Run("revealed when configured", func(t *testing.T) {
		h := newHarness(t, withResetOptions(auth.WithRevealUnknownEmail(true)))
		err := h.resets.RequestReset(context.Background(), "ghost@example.com")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeResetUnknownEmail)
		assert.Zero(t, h.outbox.count())
	})
}

func TestRequestReset_UnknownEmailTiming(t *testing.T) {
	t.Run("waits the seed delay before any delivery", func(t *testing.T) {
		h := newHarness(t, withResetOptions(auth.WithUnknownEmailDelay(40*time.Millisecond)))

		start := time.Now()
		require.NoError(t, h.resets.RequestReset(context.Background(), "ghost@example.com"))
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("follows observed delivery time", func(t *testing.T) {
		h := newHarness(t, withResetOptions(auth.WithUnknownEmailDelay(0)))
		h.register(t, "Alice", "alice@example.com", "Password1!")
		h.outbox.delay = 60 * time.Millisecond

		require.NoError(t, h.resets.RequestReset(context.Background(), "alice@example.com"))

		start := time.Now()
		require.NoError(t, h.resets.RequestReset(context.Background(), "ghost@example.com"))
		assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	})

	t.Run("ignores failed deliveries", func(t *testing.T) {
		h := newHarness(t, withResetOptions(auth.WithUnknownEmailDelay(0)))
		h.register(t, "Alice", "alice@example.com", "Password1!")
		h.outbox.delay = 300 * time.Millisecond
		h.outbox.err = errors.New("smtp unreachable")

		require.Error(t, h.resets.RequestReset(context.Background(), "alice@example.com"))

		start := time.Now()
		require.NoError(t, h.resets.RequestReset(context.Background(), "ghost@example.com"))
		assert.Less(t, time.Since(start), 250*time.Millisecond)
	})

	t.Run("stops waiting when the request is cancelled", func(t *testing.T) {
		h := newHarness(t, withResetOptions(auth.WithUnknownEmailDelay(5*time.Second)))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		require.NoError(t, h.resets.RequestReset(ctx, "ghost@example.com"))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("no delay when unknown emails are revealed", func(t *testing.T) {
		h := newHarness(t, withResetOptions(
			auth.WithUnknownEmailDelay(5*time.Second),
			auth.WithRevealUnknownEmail(true),
		))

		start := time.Now()
		require.Error(t, h.resets.RequestReset(context.Background(), "ghost@example.com"))
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestRequestReset_NotifyFailureDiscardsToken(t *testing.T) {
	h := newHarness(t)
	user := h.register(t, "Alice", "alice@example.com", "Password1!")
	h.outbox.err = errors.New("smtp unreachable")

	err := h.resets.RequestReset(context.Background(), "alice@example.com")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeResetNotifyFailed)
	assert.ErrorIs(t, err, auth.ErrNotifyFailed)

	_, err = h.store.Resets().GetLatestByUser(context.Background(), user.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestRequestReset_RepositoryFailure(t *testing.T) {
	ctx := context.Background()
	users := mocks.NewMockUserRepository(t)
	resets := mocks.NewMockPasswordResetRepository(t)
	notifier := mocks.NewMockResetNotifier(t)

	users.On("GetByEmail", ctx, "alice@example.com").
		Return(&auth.User{ID: 1, Name: "Alice", Email: "alice@example.com"}, nil)
	resets.On("Create", ctx, mock.AnythingOfType("*auth.PasswordReset")).Return(errors.New("db down"))

	svc, err := auth.NewPasswordResetService(users, resets, notifier)
	require.NoError(t, err)

	err = svc.RequestReset(ctx, "alice@example.com")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "RESET_REQUEST_FAILED")
	notifier.AssertNotCalled(t, "SendResetLink", mock.Anything, mock.Anything)
}

func TestValidateToken_Lifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "Alice", "alice@example.com", "Password1!")

	first := h.requestLink(t, "alice@example.com")
	require.NoError(t, h.resets.ValidateToken(ctx, first.Token))

	t.Run("unknown and empty tokens", func(t *testing.T) {
		errutil.AssertErrorCode(t, h.resets.ValidateToken(ctx, ""), auth.CodeResetTokenInvalid)
		errutil.AssertErrorCode(t, h.resets.ValidateToken(ctx, strings.Repeat("0", 64)), auth.CodeResetTokenInvalid)
	})

	t.Run("newer request supersedes", func(t *testing.T) {
		h.clock.Advance(time.Second)
		second := h.requestLink(t, "alice@example.com")

		err := h.resets.ValidateToken(ctx, first.Token)
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
		require.NoError(t, h.resets.ValidateToken(ctx, second.Token))

		_, err = h.resets.ValidateAndConsume(ctx, first.Token, first.Email, first.ID)
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
	})
}

func TestValidateToken_Expiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "Alice", "alice@example.com", "Password1!")
	l := h.requestLink(t, "alice@example.com")

	h.clock.Advance(auth.DefaultResetTTL)
	require.NoError(t, h.resets.ValidateToken(ctx, l.Token), "valid at the expiry instant")

	h.clock.Advance(time.Second)
	errutil.AssertErrorCode(t, h.resets.ValidateToken(ctx, l.Token), auth.CodeResetTokenInvalid)

	_, err := h.resets.ValidateAndConsume(ctx, l.Token, l.Email, l.ID)
	errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
}

func TestValidateToken_DoesNotConsume(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "Alice", "alice@example.com", "Password1!")
	l := h.requestLink(t, "alice@example.com")

	for range 3 {
		require.NoError(t, h.resets.ValidateToken(ctx, l.Token))
	}
	ref, err := h.resets.ValidateAndConsume(ctx, l.Token, l.Email, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID, ref.ID)
}

func TestValidateAndConsume(t *testing.T) {
	ctx := context.Background()

	t.Run("identity must match", func(t *testing.T) {
		h := newHarness(t)
		h.register(t, "Alice", "alice@example.com", "Password1!")
		l := h.requestLink(t, "alice@example.com")

		_, err := h.resets.ValidateAndConsume(ctx, l.Token, "mallory@example.com", l.ID)
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
		_, err = h.resets.ValidateAndConsume(ctx, l.Token, l.Email, l.ID+1)
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)

		// A mismatch does not burn the token.
		ref, err := h.resets.ValidateAndConsume(ctx, l.Token, "  ALICE@example.com", l.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", ref.Email)
	})

	t.Run("single use", func(t *testing.T) {
		h := newHarness(t)
		h.register(t, "Alice", "alice@example.com", "Password1!")
		l := h.requestLink(t, "alice@example.com")

		_, err := h.resets.ValidateAndConsume(ctx, l.Token, l.Email, l.ID)
		require.NoError(t, err)
		_, err = h.resets.ValidateAndConsume(ctx, l.Token, l.Email, l.ID)
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
		errutil.AssertErrorCode(t, h.resets.ValidateToken(ctx, l.Token), auth.CodeResetTokenInvalid)
	})

	t.Run("owner deleted", func(t *testing.T) {
		h := newHarness(t)
		user := h.register(t, "Alice", "alice@example.com", "Password1!")
		l := h.requestLink(t, "alice@example.com")
		require.NoError(t, h.store.Users().Delete(ctx, user.ID))

		_, err := h.resets.ValidateAndConsume(ctx, l.Token, l.Email, l.ID)
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
	})

	t.Run("lost race maps to invalid token", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		resets := mocks.NewMockPasswordResetRepository(t)
		now := time.Now()

		reset, err := auth.NewPasswordReset(1, "a@example.com", auth.HashToken("tok"), now, now.Add(time.Hour))
		require.NoError(t, err)
		resets.On("GetByTokenHash", ctx, auth.HashToken("tok")).Return(reset, nil)
		resets.On("GetLatestByUser", ctx, int64(1)).Return(reset, nil)
		resets.On("Consume", ctx, reset.ID, now).Return(auth.ErrNotFound)
		users.On("GetByID", ctx, int64(1)).Return(&auth.User{ID: 1, Email: "a@example.com"}, nil)

		svc, err := auth.NewPasswordResetService(users, resets, mocks.NewMockResetNotifier(t),
			auth.WithResetClock(func() time.Time { return now }))
		require.NoError(t, err)

		_, err = svc.ValidateAndConsume(ctx, "tok", "a@example.com", 1)
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
	})

	t.Run("repository failure is not an invalid token", func(t *testing.T) {
		resets := mocks.NewMockPasswordResetRepository(t)
		resets.On("GetByTokenHash", ctx, mock.Anything).Return(nil, errors.New("db down"))

		svc, err := auth.NewPasswordResetService(mocks.NewMockUserRepository(t), resets, mocks.NewMockResetNotifier(t))
		require.NoError(t, err)

		_, err = svc.ValidateAndConsume(ctx, "tok", "a@example.com", 1)
		errutil.AssertErrorCode(t, err, "RESET_VALIDATE_FAILED")
	})
}

func TestPasswordResetService_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "Alice", "alice@example.com", "Password1!")
	h.register(t, "Bob", "bob@example.com", "Password1!")

	h.requestLink(t, "alice@example.com")
	h.clock.Advance(30 * time.Minute)
	h.requestLink(t, "bob@example.com")
	h.clock.Advance(45 * time.Minute)

	n, err := h.resets.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
