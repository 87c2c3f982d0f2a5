// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// bcryptMaxBytes is the longest input bcrypt accepts.
const bcryptMaxBytes = 72

// PasswordPolicy describes the strength rules applied to new passwords on
// registration and reset. Login does not apply it.
type PasswordPolicy struct {
	MinLength        int
	RequireMixedCase bool
	RequireDigit     bool
	RequireSymbol    bool
}

// DefaultPasswordPolicy requires eight characters with mixed case, a digit,
// and a symbol.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        8,
		RequireMixedCase: true,
		RequireDigit:     true,
		RequireSymbol:    true,
	}
}

// Check returns the first rule the password violates, or "" if it passes.
// Length is counted in characters, not bytes.
func (p PasswordPolicy) Check(password string) string {
	if utf8.RuneCountInString(password) < p.MinLength {
		return fmt.Sprintf("The password field must be at least %d characters.", p.MinLength)
	}
	if len(password) > bcryptMaxBytes {
		return fmt.Sprintf("The password field must not be greater than %d bytes.", bcryptMaxBytes)
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.In(r, unicode.P, unicode.S, unicode.Z):
			symbol = true
		}
	}

	if p.RequireMixedCase && (!upper || !lower) {
		return "The password field must contain at least one uppercase and one lowercase letter."
	}
	if p.RequireDigit && !digit {
		return "The password field must contain at least one number."
	}
	if p.RequireSymbol && !symbol {
		return "The password field must contain at least one symbol."
	}
	return ""
}
