// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mail delivers password reset links. ResendSender sends through the
// Resend API; LogSender writes the link to the log for local development.
package mail

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strconv"
	texttemplate "text/template"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// DefaultSubject is the subject line of reset emails.
const DefaultSubject = "Reset your password"

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/reset.html.tmpl"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/reset.txt.tmpl"))
)

// templateData is what the reset templates render.
type templateData struct {
	Name      string
	Email     string
	URL       string
	ExpiresIn string
}

// Rendered is a reset email ready to send.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Render builds the HTML and plain text bodies for msg.
func Render(msg auth.ResetMessage) (Rendered, error) {
	name := msg.Name
	if name == "" {
		name = "there"
	}
	data := templateData{
		Name:      name,
		Email:     msg.Email,
		URL:       msg.URL,
		ExpiresIn: humanDuration(msg.ExpiresIn),
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return Rendered{}, oops.Code("MAIL_RENDER_FAILED").With("format", "html").Wrap(err)
	}
	if err := textTemplate.Execute(&text, data); err != nil {
		return Rendered{}, oops.Code("MAIL_RENDER_FAILED").With("format", "text").Wrap(err)
	}
	return Rendered{Subject: DefaultSubject, HTML: html.String(), Text: text.String()}, nil
}

// humanDuration renders whole hours or minutes, e.g. "60 minutes" or "2 hours".
func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0 && d != time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
