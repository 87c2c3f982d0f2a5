// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/pkg/errutil"
)

// fail writes the response for a service error. Errors without a client
// facing code are logged and reported as a generic server error.
func (h *handler) fail(c *gin.Context, err error) {
	switch auth.Code(err) {
	case auth.CodeValidation:
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, validationBody(auth.ValidationFields(err)))
	case auth.CodeDuplicateEmail:
		c.AbortWithStatusJSON(http.StatusConflict, validationBody(auth.ValidationFields(err)))
	case auth.CodeResetUnknownEmail:
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, validationBody(map[string]string{"email": msgUnknownEmail}))
	case auth.CodeInvalidCredentials:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msgInvalidCredentials})
	case auth.CodeUnauthorized:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msgUnauthenticated})
	case auth.CodeResetTokenInvalid:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": msgInvalidToken})
	case auth.CodeResetNotifyFailed:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": msgResetLinkFailed})
	default:
		errutil.LogErrorContext(c.Request.Context(), h.logger, "request failed", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": msgServerError})
	}
}

// validationBody renders field messages as {message, errors: {field: [msg]}}.
// The message is the first field's message in field-name order.
func validationBody(fields map[string]string) gin.H {
	if len(fields) == 0 {
		return gin.H{"message": msgInvalidData, "errors": map[string][]string{}}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := make(map[string][]string, len(fields))
	for _, name := range names {
		errs[name] = []string{fields[name]}
	}

	message := fields[names[0]]
	switch more := len(names) - 1; more {
	case 0:
	case 1:
		message += " (and 1 more error)"
	default:
		message += fmt.Sprintf(" (and %d more errors)", more)
	}
	return gin.H{"message": message, "errors": errs}
}
