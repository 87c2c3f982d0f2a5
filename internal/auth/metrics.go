// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// Status constants for operation metrics.
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// Operations is the counter for orchestrator operations.
// Use RegisterMetrics to register this with a Prometheus registry.
var Operations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authgate_auth_operations_total",
		Help: "Total number of authentication operations by outcome",
	},
	[]string{"operation", "status"},
)

// ResetTokens is the counter for reset token lifecycle events.
// Use RegisterMetrics to register this with a Prometheus registry.
var ResetTokens = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authgate_reset_tokens_total",
		Help: "Total number of password reset token events",
	},
	[]string{"event"},
)

// Sessions is the counter for session token lifecycle events.
// Use RegisterMetrics to register this with a Prometheus registry.
var Sessions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authgate_sessions_total",
		Help: "Total number of session token events",
	},
	[]string{"event"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Operations)
	reg.MustRegister(ResetTokens)
	reg.MustRegister(Sessions)
}

// recordOperation classifies err into a status label and counts it.
func recordOperation(operation string, err error) {
	status := StatusSuccess
	if err != nil {
		switch Code(err) {
		case CodeValidation, CodeDuplicateEmail, CodeInvalidCredentials,
			CodeUnauthorized, CodeResetTokenInvalid, CodeResetUnknownEmail:
			status = StatusRejected
		default:
			status = StatusError
		}
	}
	Operations.WithLabelValues(operation, status).Inc()
}
