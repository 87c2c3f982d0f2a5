// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/auth/memory"
	"github.com/holomush/authgate/internal/httpapi"
)

const (
	alicePassword = "Abcd123!"
	newPassword   = "Newpass1!"
)

type outbox struct {
	mu   sync.Mutex
	msgs []auth.ResetMessage
	err  error
}

func (o *outbox) SendResetLink(_ context.Context, msg auth.ResetMessage) error {
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

// resetLink is the parsed query of the last reset URL sent.
type resetLink struct {
	Token string
	Email string
	ID    string
}

func (o *outbox) last(t *testing.T) resetLink {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs, "no reset link sent")
	u, err := url.Parse(o.msgs[len(o.msgs)-1].URL)
	require.NoError(t, err)
	q := u.Query()
	return resetLink{Token: q.Get("token"), Email: q.Get("email"), ID: q.Get("id")}
}

type api struct {
	router http.Handler
	outbox *outbox
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, box *outbox, resetOpts ...auth.ResetOption) *auth.Service {
	t.Helper()
	store := memory.NewStore()
	logger := discardLogger()

	hasher, err := auth.NewBcryptHasher(auth.MinBcryptCost)
	require.NoError(t, err)
	sessions, err := auth.NewSessionService(store.Sessions(), auth.WithSessionLogger(logger))
	require.NoError(t, err)
	resetOpts = append([]auth.ResetOption{
		auth.WithResetURL("https://app.example.com/reset-password"),
		auth.WithResetLogger(logger),
	}, resetOpts...)
	resets, err := auth.NewPasswordResetService(store.Users(), store.Resets(), box, resetOpts...)
	require.NoError(t, err)
	svc, err := auth.NewAuthService(store.Users(), sessions, resets, hasher, store.Transactor(), auth.WithLogger(logger))
	require.NoError(t, err)
	return svc
}

func newAPI(t *testing.T, opts ...httpapi.Option) *api {
	t.Helper()
	box := &outbox{}
	opts = append([]httpapi.Option{httpapi.WithLogger(discardLogger())}, opts...)
	return &api{router: httpapi.NewRouter(newService(t, box), opts...), outbox: box}
}

type response struct {
	*httptest.ResponseRecorder
	t *testing.T
}

func (r response) json() map[string]any {
	r.t.Helper()
	var body map[string]any
	require.NoError(r.t, json.Unmarshal(r.Body.Bytes(), &body), "body: %s", r.Body.String())
	return body
}

func (r response) message() string {
	r.t.Helper()
	msg, _ := r.json()["message"].(string)
	return msg
}

func serve(t *testing.T, h http.Handler, method, path string, body any, headers ...string) response {
	t.Helper()
	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return response{ResponseRecorder: rec, t: t}
}

func (a *api) do(t *testing.T, method, path string, body any, headers ...string) response {
	t.Helper()
	return serve(t, a.router, method, path, body, headers...)
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

func (a *api) register(t *testing.T, name, email string) {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/register", gin.H{"name": name, "email": email, "password": alicePassword})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
}

func (a *api) login(t *testing.T, email, password string) string {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/login", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	token, _ := resp.json()["token"].(string)
	require.NotEmpty(t, token)
	return token
}

// stubService fails every call with err, or panics when err is nil.
type stubService struct {
	err error
}

func (s stubService) fail() error {
	if s.err == nil {
		panic("stub called")
	}
	return s.err
}

func (s stubService) Register(context.Context, auth.RegisterInput) (*auth.User, error) {
	return nil, s.fail()
}

func (s stubService) Login(context.Context, auth.LoginInput) (*auth.LoginResult, error) {
	return nil, s.fail()
}

func (s stubService) Logout(context.Context, string) error { return s.fail() }

func (s stubService) Authenticate(context.Context, string) (*auth.User, *auth.Session, error) {
	return nil, nil, s.fail()
}

func (s stubService) ForgotPassword(context.Context, string) error { return s.fail() }

func (s stubService) CheckResetToken(context.Context, string) (bool, error) {
	return false, s.fail()
}

func (s stubService) ResetPassword(context.Context, auth.ResetInput) error { return s.fail() }
