// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/holomush/authgate/internal/auth"
)

// Response messages.
const (
	msgRegistered         = "Registration successful"
	msgLoggedIn           = "Login successful"
	msgLoggedOut          = "Logged out"
	msgResetLinkSent      = "Reset link sent to email."
	msgResetLinkFailed    = "Unable to send reset link."
	msgPasswordReset      = "Password reset successfully"
	msgInvalidToken       = "Invalid token or email"
	msgInvalidCredentials = "Invalid login credentials"
	msgUnauthenticated    = "Unauthenticated."
	msgUnknownEmail       = "We can't find a user with that email address."
	msgInvalidData        = "The given data was invalid."
	msgMalformedBody      = "Malformed request body."
	msgBodyTooLarge       = "Request body too large."
	msgNotFound           = "Not Found."
	msgServerError        = "Server error"
)

const currentUserKey = "authgate.user"

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 64 << 10

type handler struct {
	svc    AuthService
	logger *slog.Logger
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// resetPasswordRequest accepts id as a number or a numeric string, since
// clients copy it from the reset link query.
type resetPasswordRequest struct {
	ID                   json.Number `json:"id"`
	Email                string      `json:"email"`
	Password             string      `json:"password"`
	PasswordConfirmation string      `json:"password_confirmation"`
}

// bind decodes the JSON body into dst. An empty body decodes as {} so that
// missing fields are reported as validation errors.
// Bodies over maxBodyBytes are rejected with 413.
func bind(c *gin.Context, dst any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"message": msgBodyTooLarge})
			return false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": msgMalformedBody})
		return false
	}
	return true
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}

	_, err := h.svc.Register(c.Request.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msgRegistered})
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}

	result, err := h.svc.Login(c.Request.Context(), auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	body := gin.H{
		"message":    msgLoggedIn,
		"user":       result.User,
		"token":      result.Token,
		"token_type": "Bearer",
	}
	if result.Session != nil && result.Session.ExpiresAt != nil {
		body["expires_at"] = result.Session.ExpiresAt
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), bearerToken(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgLoggedOut})
}

func (h *handler) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bind(c, &req) {
		return
	}

	if err := h.svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgResetLinkSent})
}

func (h *handler) checkResetToken(c *gin.Context) {
	token := c.Param("token")
	valid, err := h.svc.CheckResetToken(c.Request.Context(), token)
	if err != nil {
		h.fail(c, err)
		return
	}

	body := gin.H{"token": token, "valid": valid}
	if !valid {
		body["message"] = msgInvalidToken
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bind(c, &req) {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": msgInvalidToken})
		return
	}
	if req.ID != "" {
		if bodyID, err := req.ID.Int64(); err != nil || bodyID != id {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": msgInvalidToken})
			return
		}
	}

	err = h.svc.ResetPassword(c.Request.Context(), auth.ResetInput{
		Token:                c.Param("token"),
		ID:                   id,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgPasswordReset})
}

func (h *handler) currentUser(c *gin.Context) {
	user, ok := c.Get(currentUserKey)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msgUnauthenticated})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
