// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/mail"
)

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd(opts *globalOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions and used or expired reset tokens",
		Long: `Delete sessions past their expiry and password reset tokens that
have expired or been used. Safe to run from cron while the server is up.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, opts, true)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			be, err := openBackend(ctx, cfg, deps, logger, false)
			if err != nil {
				return err
			}
			defer be.close()

			// Purging never sends mail.
			svcs, err := buildServices(cfg, be, mail.NewLogSender(logger), logger)
			if err != nil {
				return err
			}

			sessions, err := svcs.sessions.PurgeExpired(ctx)
			if err != nil {
				return err
			}
			resets, err := svcs.resets.PurgeExpired(ctx)
			if err != nil {
				return err
			}

			logger.Info("purge complete", "sessions", sessions, "reset_tokens", resets)
			cmd.Printf("purged %d sessions and %d reset tokens\n", sessions, resets)
			return nil
		},
	}
}
