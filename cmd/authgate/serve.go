// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/httpapi"
	"github.com/holomush/authgate/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd(opts *globalOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Long: `Run the authentication API together with the metrics and health
endpoints. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts, deps)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *globalOptions, deps *Deps) error {
	cfg, logger, err := loadConfig(cmd, opts, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting authgate",
		"version", version,
		"store", cfg.Store,
		"hash_algorithm", cfg.HashAlgorithm,
	)

	be, err := openBackend(ctx, cfg, deps, logger, cfg.AutoMigrate)
	if err != nil {
		return err
	}
	defer be.close()

	notifier, err := deps.NotifierFactory(cfg, logger)
	if err != nil {
		return err
	}

	svcs, err := buildServices(cfg, be, notifier, logger)
	if err != nil {
		return err
	}

	var (
		obsServer *observability.Server
		obsErrCh  <-chan error
		metrics   *observability.Metrics
	)
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, be.ready,
			observability.WithLogger(logger),
			observability.WithRegistration(auth.RegisterMetrics),
		)
		metrics = obsServer.Metrics()
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(svcs.auth,
		httpapi.WithBasePath(cfg.BasePath),
		httpapi.WithCORSOrigins(cfg.CORSOrigins),
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(metrics),
	)
	apiServer := httpapi.NewServer(cfg.HTTPAddr, router, logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		if obsServer != nil {
			stopServer(logger, "observability", obsServer)
		}
		return oops.With("operation", "start api server").Wrap(err)
	}

	metricsAddr := ""
	if obsServer != nil {
		metricsAddr = obsServer.Addr()
	}
	cmd.Printf("authgate listening on %s\n", apiServer.Addr())
	deps.Ready(apiServer.Addr(), metricsAddr)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err, ok := <-apiErrCh:
		if ok {
			serveErr = oops.With("server", "api").Wrap(err)
		}
	case err, ok := <-obsErrCh:
		if ok {
			serveErr = oops.With("server", "observability").Wrap(err)
		}
	}

	stopServer(logger, "api", apiServer)
	if obsServer != nil {
		stopServer(logger, "observability", obsServer)
	}
	logger.Info("shutdown complete")
	return serveErr
}

type stopper interface {
	Stop(ctx context.Context) error
}

func stopServer(logger *slog.Logger, name string, s stopper) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}
