// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/auth/memory"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// anyCtx matches the span-carrying contexts the Service passes on.
var anyCtx = mock.MatchedBy(func(context.Context) bool { return true })

// clock is a settable time source shared by the services under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// outbox records reset links instead of mailing them. Each send takes delay.
type outbox struct {
	mu    sync.Mutex
	msgs  []auth.ResetMessage
	err   error
	delay time.Duration
}

func (o *outbox) SendResetLink(_ context.Context, msg auth.ResetMessage) error {
	time.Sleep(o.delay)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

// link is the token and identity carried by a reset URL.
type link struct {
	Token string
	Email string
	ID    int64
}

func (o *outbox) last(t *testing.T) link {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs, "no reset link sent")
	return parseLink(t, o.msgs[len(o.msgs)-1].URL)
}

func parseLink(t *testing.T, raw string) link {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	id, err := strconv.ParseInt(q.Get("id"), 10, 64)
	require.NoError(t, err)
	return link{Token: q.Get("token"), Email: q.Get("email"), ID: id}
}

// harness wires the services over an in-memory store.
type harness struct {
	store    *memory.Store
	clock    *clock
	outbox   *outbox
	hasher   auth.PasswordHasher
	sessions *auth.SessionService
	resets   *auth.PasswordResetService
	svc      *auth.Service
}

type harnessConfig struct {
	resetOpts   []auth.ResetOption
	serviceOpts []auth.ServiceOption
	hasher      auth.PasswordHasher
}

type harnessOption func(*harnessConfig)

func withResetOptions(opts ...auth.ResetOption) harnessOption {
	return func(c *harnessConfig) { c.resetOpts = append(c.resetOpts, opts...) }
}

func withServiceOptions(opts ...auth.ServiceOption) harnessOption {
	return func(c *harnessConfig) { c.serviceOpts = append(c.serviceOpts, opts...) }
}

func withHasher(h auth.PasswordHasher) harnessOption {
	return func(c *harnessConfig) { c.hasher = h }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.hasher == nil {
		h, err := auth.NewBcryptHasher(auth.MinBcryptCost)
		require.NoError(t, err)
		cfg.hasher = h
	}

	h := &harness{
		store:  memory.NewStore(),
		clock:  newClock(),
		outbox: &outbox{},
		hasher: cfg.hasher,
	}

	var err error
	h.sessions, err = auth.NewSessionService(h.store.Sessions(),
		auth.WithSessionClock(h.clock.Now),
		auth.WithSessionLogger(discardLogger),
	)
	require.NoError(t, err)

	resetOpts := append([]auth.ResetOption{
		auth.WithResetClock(h.clock.Now),
		auth.WithResetLogger(discardLogger),
		auth.WithResetURL("https://app.example.com/reset-password"),
	}, cfg.resetOpts...)
	h.resets, err = auth.NewPasswordResetService(h.store.Users(), h.store.Resets(), h.outbox, resetOpts...)
	require.NoError(t, err)

	serviceOpts := append([]auth.ServiceOption{auth.WithLogger(discardLogger)}, cfg.serviceOpts...)
	h.svc, err = auth.NewAuthService(h.store.Users(), h.sessions, h.resets, h.hasher, h.store.Transactor(), serviceOpts...)
	require.NoError(t, err)
	return h
}

func (h *harness) register(t *testing.T, name, email, password string) *auth.User {
	t.Helper()
	user, err := h.svc.Register(context.Background(), auth.RegisterInput{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	return user
}

func (h *harness) login(t *testing.T, email, password string) *auth.LoginResult {
	t.Helper()
	res, err := h.svc.Login(context.Background(), auth.LoginInput{Email: email, Password: password})
	require.NoError(t, err)
	return res
}

// requestLink runs forgot-password and returns the link that was sent.
func (h *harness) requestLink(t *testing.T, email string) link {
	t.Helper()
	require.NoError(t, h.svc.ForgotPassword(context.Background(), email))
	return h.outbox.last(t)
}
