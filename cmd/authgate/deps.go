// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/auth/memory"
	"github.com/holomush/authgate/internal/auth/postgres"
	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/mail"
	"github.com/holomush/authgate/internal/observability"
	"github.com/holomush/authgate/internal/store"
)

// Migrator is the schema management surface used by the CLI.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Status() (store.Status, error)
	Close() error
}

// Deps contains injectable dependencies for the commands.
// Nil fields use their default implementations.
type Deps struct {
	// PoolFactory opens the Postgres pool.
	// Default: store.Connect with store.DefaultConnectOptions
	PoolFactory func(ctx context.Context, databaseURL string, logger *slog.Logger) (*pgxpool.Pool, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// NotifierFactory creates the reset link notifier.
	// Default: newNotifier
	NotifierFactory func(cfg *config.Config, logger *slog.Logger) (auth.ResetNotifier, error)

	// Ready is called once serve is listening. Default: no-op.
	Ready func(apiAddr, metricsAddr string)
}

func (d *Deps) setDefaults() {
	if d.PoolFactory == nil {
		d.PoolFactory = func(ctx context.Context, databaseURL string, logger *slog.Logger) (*pgxpool.Pool, error) {
			return store.Connect(ctx, databaseURL, store.DefaultConnectOptions(), logger)
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if d.NotifierFactory == nil {
		d.NotifierFactory = newNotifier
	}
	if d.Ready == nil {
		d.Ready = func(string, string) {}
	}
}

// newNotifier sends through Resend when an API key is configured and logs
// links otherwise.
func newNotifier(cfg *config.Config, logger *slog.Logger) (auth.ResetNotifier, error) {
	if cfg.ResendAPIKey == "" {
		logger.Warn("RESEND_API_KEY not set, reset links will be logged instead of emailed")
		return mail.NewLogSender(logger, mail.WithFullLinks(cfg.MailLogLinks)), nil
	}
	sender, err := mail.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom, mail.WithSenderLogger(logger))
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// backend is the storage selected by configuration.
type backend struct {
	users    auth.UserRepository
	sessions auth.SessionRepository
	resets   auth.PasswordResetRepository
	tx       auth.Transactor
	ready    observability.ReadinessChecker
	close    func()
}

// openBackend connects the configured store. For postgres it applies
// pending migrations first when autoMigrate is set.
func openBackend(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger, autoMigrate bool) (*backend, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store, all data is lost on exit")
		s := memory.NewStore()
		return &backend{
			users:    s.Users(),
			sessions: s.Sessions(),
			resets:   s.Resets(),
			tx:       s.Transactor(),
			close:    func() {},
		}, nil
	}

	if cfg.DatabaseURL == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("%s environment variable is required", config.EnvDatabaseURL)
	}

	pool, err := deps.PoolFactory(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}

	if autoMigrate {
		if err := migrateUp(deps, cfg.DatabaseURL, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &backend{
		users:    postgres.NewUserRepository(pool),
		sessions: postgres.NewSessionRepository(pool),
		resets:   postgres.NewPasswordResetRepository(pool),
		tx:       postgres.NewTransactor(pool),
		ready: func(ctx context.Context) bool {
			return pool.Ping(ctx) == nil
		},
		close: pool.Close,
	}, nil
}

func migrateUp(deps *Deps, databaseURL string, logger *slog.Logger) error {
	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return err
	}
	status, err := m.Status()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", status.Version)
	return nil
}

// services is the wired service graph.
type services struct {
	auth     *auth.Service
	sessions *auth.SessionService
	resets   *auth.PasswordResetService
}

func buildServices(cfg *config.Config, be *backend, notifier auth.ResetNotifier, logger *slog.Logger) (*services, error) {
	hasher, err := auth.NewPasswordHasher(cfg.HashAlgorithm, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	sessions, err := auth.NewSessionService(be.sessions,
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithSessionLogger(logger),
	)
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").With("service", "sessions").Wrap(err)
	}

	resets, err := auth.NewPasswordResetService(be.users, be.resets, notifier,
		auth.WithResetTTL(cfg.ResetTTL),
		auth.WithResetURL(cfg.ResetURL),
		auth.WithRevealUnknownEmail(cfg.RevealUnknownEmail),
		auth.WithUnknownEmailDelay(cfg.UnknownEmailDelay),
		auth.WithResetLogger(logger),
	)
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").With("service", "resets").Wrap(err)
	}

	svc, err := auth.NewAuthService(be.users, sessions, resets, hasher, be.tx,
		auth.WithPasswordPolicy(cfg.PasswordPolicy()),
		auth.WithRevokeSessionsOnReset(cfg.RevokeSessionsOnReset),
		auth.WithLogger(logger),
	)
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").With("service", "auth").Wrap(err)
	}

	return &services{auth: svc, sessions: sessions, resets: resets}, nil
}
