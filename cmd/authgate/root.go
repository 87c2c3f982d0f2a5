// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/logging"
	"github.com/holomush/authgate/internal/xdg"
)

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the root command for the authgate CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = &Deps{}
	}
	deps.setDefaults()

	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "authgate",
		Short: "authgate - account registration, login, and password reset API",
		Long: `authgate serves a JSON API for registering accounts, logging in with
opaque bearer tokens, and resetting forgotten passwords by email.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file path (YAML, default $XDG_CONFIG_HOME/authgate/config.yaml if present)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with secrets (ignored if missing)")
	config.RegisterFlags(flags)

	cmd.AddCommand(NewServeCmd(opts, deps))
	cmd.AddCommand(NewMigrateCmd(opts, deps))
	cmd.AddCommand(NewPurgeCmd(opts, deps))

	return cmd
}

// loadConfig resolves the configuration for cmd and sets up logging.
// validate is false for commands that only need part of the configuration.
func loadConfig(cmd *cobra.Command, opts *globalOptions, validate bool) (*config.Config, *slog.Logger, error) {
	configFile := opts.configFile
	if configFile == "" {
		found, err := xdg.FindConfigFile()
		if err != nil {
			return nil, nil, err
		}
		configFile = found
	}

	cfg, err := config.Load(cmd.Flags(), configFile, opts.envFile)
	if err != nil {
		return nil, nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, nil, oops.With("operation", "validate configuration").Wrap(err)
		}
	}

	logger := logging.Setup("authgate", version, cfg.LogFormat, cfg.LogLevel, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return cfg, logger, nil
}
