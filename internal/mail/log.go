// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/holomush/authgate/internal/auth"
)

const redacted = "REDACTED"

// LogSender implements auth.ResetNotifier by logging the reset link. It is
// used when no mail provider is configured. The token in the logged URL is
// redacted unless full links are enabled for local development.
type LogSender struct {
	logger    *slog.Logger
	fullLinks bool
}

// LogOption configures a LogSender.
type LogOption func(*LogSender)

// WithFullLinks logs reset links with their live token. Never enable it
// where logs leave the machine.
func WithFullLinks(enabled bool) LogOption {
	return func(s *LogSender) {
		s.fullLinks = enabled
	}
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger, opts ...LogOption) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	s := &LogSender{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendResetLink logs the reset link and subject.
func (s *LogSender) SendResetLink(ctx context.Context, msg auth.ResetMessage) error {
	rendered, err := Render(msg)
	if err != nil {
		return err
	}
	link := msg.URL
	if !s.fullLinks {
		link = redactToken(link)
	}
	s.logger.WarnContext(ctx, "mail delivery disabled, reset link logged",
		"to", msg.Email,
		"subject", rendered.Subject,
		"url", link,
	)
	return nil
}

// redactToken replaces the token query parameter. Unparseable links are
// dropped entirely.
func redactToken(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return redacted
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", redacted)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

var _ auth.ResetNotifier = (*LogSender)(nil)
