// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"sort"
	"strings"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Sentinel errors for the failure classes clients can observe.
var (
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrInvalidCredentials    = errors.New("invalid login credentials")
	ErrInvalidOrExpiredToken = errors.New("invalid token or email")
	ErrUnauthorized          = errors.New("unauthenticated")
	ErrUnknownEmail          = errors.New("no account with that email")
	ErrNotifyFailed          = errors.New("unable to send reset link")
)

// Error codes attached to client-visible failures.
const (
	CodeValidation         = "AUTH_VALIDATION_FAILED"
	CodeDuplicateEmail     = "AUTH_DUPLICATE_EMAIL"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUnauthorized       = "AUTH_UNAUTHORIZED"
	CodeResetTokenInvalid  = "RESET_TOKEN_INVALID"
	CodeResetUnknownEmail  = "RESET_UNKNOWN_EMAIL"
	CodeResetNotifyFailed  = "RESET_NOTIFY_FAILED"
)

// ValidationError reports per-field input problems. Fields maps the JSON
// field name to a human readable message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// newValidationError wraps field messages in an AUTH_VALIDATION_FAILED error.
func newValidationError(fields map[string]string) error {
	return oops.Code(CodeValidation).
		With("fields", fields).
		Wrap(&ValidationError{Fields: fields})
}

// ValidationFields returns the per-field messages carried by err, or nil
// when it has none. Besides ValidationError this covers errors such as
// AUTH_DUPLICATE_EMAIL that attach a "fields" context value.
func ValidationFields(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if fields, ok := oopsErr.Context()["fields"].(map[string]string); ok {
			return fields
		}
	}
	return nil
}

// Code returns the oops code carried by err, or "" if it has none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	if code, ok := any(oopsErr.Code()).(string); ok {
		return code
	}
	return ""
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

func unauthorized() error {
	return oops.Code(CodeUnauthorized).Wrap(ErrUnauthorized)
}

func invalidResetToken() error {
	return oops.Code(CodeResetTokenInvalid).Wrap(ErrInvalidOrExpiredToken)
}
