// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides credential, session, and password reset primitives
// for authgate.
//
// # Domain Types
//
// Domain types (User, Session, PasswordReset) should be created using their
// respective constructors:
//   - NewUser - creates a User with a normalized email and default role
//   - NewSession - creates a Session bound to a user with an optional expiry
//   - NewPasswordReset - creates a PasswordReset bound to a user identity
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - register, login, logout, forgot and reset password
//   - SessionService - bearer token issue, resolve, and revocation
//   - PasswordResetService - reset token issue, validation, and consumption
//
// Services are created with New*Service constructors that validate dependencies.
//
// # Errors
//
// Every error returned to callers carries an oops code. The codes that reach
// clients are listed as Code* constants; Code extracts them.
package auth
