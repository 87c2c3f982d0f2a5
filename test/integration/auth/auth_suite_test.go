// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

// Package auth_test exercises the HTTP API end to end against PostgreSQL.
package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/auth/postgres"
	"github.com/holomush/authgate/internal/httpapi"
	"github.com/holomush/authgate/internal/store"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth API Integration Suite")
}

// testEnv holds the database and the HTTP server under test.
type testEnv struct {
	ctx       context.Context
	container testcontainers.Container
	pool      *pgxpool.Pool
	server    *httptest.Server
	outbox    *outbox
}

var env *testEnv

var _ = BeforeSuite(func() {
	var err error
	env, err = setupTestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cleanup()
	}
})

func setupTestEnv() (*testEnv, error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("authgate"),
		tcpostgres.WithUsername("authgate"),
		tcpostgres.WithPassword("authgate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, err
	}
	e := &testEnv{ctx: ctx, container: container, outbox: &outbox{}}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		e.cleanup()
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		e.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		e.cleanup()
		return nil, err
	}
	_ = migrator.Close()

	e.pool, err = store.Connect(ctx, connStr, store.DefaultConnectOptions(), discardLogger())
	if err != nil {
		e.cleanup()
		return nil, err
	}

	svc, err := newService(e.pool, e.outbox)
	if err != nil {
		e.cleanup()
		return nil, err
	}

	gin.SetMode(gin.TestMode)
	e.server = httptest.NewServer(httpapi.NewRouter(svc, httpapi.WithLogger(discardLogger())))
	return e, nil
}

func newService(pool *pgxpool.Pool, box *outbox) (*auth.Service, error) {
	logger := discardLogger()
	users := postgres.NewUserRepository(pool)

	hasher, err := auth.NewBcryptHasher(auth.MinBcryptCost)
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewSessionService(postgres.NewSessionRepository(pool), auth.WithSessionLogger(logger))
	if err != nil {
		return nil, err
	}
	resets, err := auth.NewPasswordResetService(users, postgres.NewPasswordResetRepository(pool), box,
		auth.WithResetURL("https://app.example.com/reset-password"),
		auth.WithResetLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthService(users, sessions, resets, hasher, postgres.NewTransactor(pool), auth.WithLogger(logger))
}

func (e *testEnv) cleanup() {
	if e.server != nil {
		e.server.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(e.ctx)
	}
}

// truncate empties every table between specs.
func (e *testEnv) truncate() {
	_, err := e.pool.Exec(e.ctx, `TRUNCATE password_resets, sessions, users RESTART IDENTITY CASCADE`)
	Expect(err).NotTo(HaveOccurred())
	e.outbox.reset()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type outbox struct {
	mu   sync.Mutex
	msgs []auth.ResetMessage
}

func (o *outbox) SendResetLink(_ context.Context, msg auth.ResetMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = nil
}

// resetLink is the query of a reset URL.
type resetLink struct {
	Token string
	Email string
	ID    string
}

func (o *outbox) last() resetLink {
	o.mu.Lock()
	defer o.mu.Unlock()
	Expect(o.msgs).NotTo(BeEmpty(), "no reset link sent")
	u, err := url.Parse(o.msgs[len(o.msgs)-1].URL)
	Expect(err).NotTo(HaveOccurred())
	q := u.Query()
	return resetLink{Token: q.Get("token"), Email: q.Get("email"), ID: q.Get("id")}
}

// call sends a JSON request and decodes the JSON response.
func call(method, path string, body any, token string) (int, map[string]any) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+"/api"+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}
