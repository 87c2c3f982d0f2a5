// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the authentication service as a JSON HTTP API.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/observability"
)

// AuthService is the part of auth.Service the API calls.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.User, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*auth.User, *auth.Session, error)
	ForgotPassword(ctx context.Context, email string) error
	CheckResetToken(ctx context.Context, token string) (bool, error)
	ResetPassword(ctx context.Context, in auth.ResetInput) error
}

type routerConfig struct {
	basePath    string
	corsOrigins []string
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// Option configures the router.
type Option func(*routerConfig)

// WithBasePath mounts the API routes under prefix.
func WithBasePath(prefix string) Option {
	return func(cfg *routerConfig) {
		cfg.basePath = prefix
	}
}

// WithCORSOrigins allows browser requests from origins. "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(cfg *routerConfig) {
		cfg.corsOrigins = origins
	}
}

// WithLogger sets the logger for access logs and server errors.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *routerConfig) {
		cfg.logger = logger
	}
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *observability.Metrics) Option {
	return func(cfg *routerConfig) {
		cfg.metrics = m
	}
}

// NewRouter builds the gin engine serving the API.
func NewRouter(svc AuthService, opts ...Option) *gin.Engine {
	cfg := &routerConfig{
		basePath: "/api",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &handler{svc: svc, logger: cfg.logger}

	r := gin.New()
	r.Use(
		requestID(),
		accessLog(cfg.logger, cfg.metrics),
		recovery(cfg.logger),
	)
	if mw := corsMiddleware(cfg.corsOrigins); mw != nil {
		r.Use(mw)
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": msgNotFound})
	})

	api := r.Group(cfg.basePath)
	api.POST("/register", h.register)
	api.POST("/login", h.login)
	api.POST("/logout", h.logout)
	api.POST("/forgot-password", h.forgotPassword)
	api.GET("/reset-password/:token", h.checkResetToken)
	api.POST("/reset-password/:token/:id", h.resetPassword)
	api.GET("/user", h.requireAuth, h.currentUser)

	return r
}
