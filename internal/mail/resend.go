// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/authgate/internal/auth"
)

// emailSender is the part of the Resend client ResendSender uses.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendSender implements auth.ResetNotifier with the Resend API.
type ResendSender struct {
	emails   emailSender
	from     string
	attempts uint64
	backoff  time.Duration
	logger   *slog.Logger
}

// ResendOption configures a ResendSender.
type ResendOption func(*ResendSender)

// WithRetries sets how many extra attempts a failed send gets and the delay
// between them.
func WithRetries(n uint64, backoff time.Duration) ResendOption {
	return func(s *ResendSender) {
		s.attempts = n
		s.backoff = backoff
	}
}

// WithSenderLogger sets the logger.
func WithSenderLogger(logger *slog.Logger) ResendOption {
	return func(s *ResendSender) {
		s.logger = logger
	}
}

// NewResendSender creates a ResendSender for the given API key. from is the
// envelope sender, e.g. "Authgate <no-reply@example.com>".
func NewResendSender(apiKey, from string, opts ...ResendOption) (*ResendSender, error) {
	if apiKey == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("resend API key is required")
	}
	client := &http.Client{
		Transport: statusTransport{base: http.DefaultTransport},
		Timeout:   10 * time.Second,
	}
	return newResendSender(resend.NewCustomClient(client, apiKey).Emails, from, opts...)
}

// statusKey carries a *statusRecorder through a send.
type statusKey struct{}

type statusRecorder struct {
	code int
}

func withStatusRecorder(ctx context.Context) (context.Context, *statusRecorder) {
	rec := &statusRecorder{}
	return context.WithValue(ctx, statusKey{}, rec), rec
}

// statusTransport records response status codes into the request's
// statusRecorder, if any.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if rec, ok := req.Context().Value(statusKey{}).(*statusRecorder); ok && resp != nil {
		rec.code = resp.StatusCode
	}
	return resp, err
}

// transient reports whether a failed send with the given provider status is
// worth retrying. Zero means no response arrived.
func transient(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func newResendSender(emails emailSender, from string, opts ...ResendOption) (*ResendSender, error) {
	if from == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("sender address is required")
	}
	s := &ResendSender{
		emails:   emails,
		from:     from,
		attempts: 2,
		backoff:  500 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backoff <= 0 {
		s.backoff = time.Millisecond
	}
	return s, nil
}

// SendResetLink renders and sends the reset email.
func (s *ResendSender) SendResetLink(ctx context.Context, msg auth.ResetMessage) error {
	rendered, err := Render(msg)
	if err != nil {
		return err
	}

	req := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.Email},
		Subject: rendered.Subject,
		Html:    rendered.HTML,
		Text:    rendered.Text,
	}

	backoff := retry.WithMaxRetries(s.attempts, retry.NewConstant(s.backoff))
	var sent *resend.SendEmailResponse
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		sendCtx, rec := withStatusRecorder(ctx)
		resp, err := s.emails.SendWithContext(sendCtx, req)
		if err != nil {
			s.logger.WarnContext(ctx, "reset email send failed", "status", rec.code, "error", err)
			if !transient(rec.code) {
				return oops.With("status", rec.code).Wrap(err)
			}
			return retry.RetryableError(err)
		}
		sent = resp
		return nil
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("provider", "resend").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "reset email sent", "email_id", sent.Id)
	return nil
}

var _ auth.ResetNotifier = (*ResendSender)(nil)
