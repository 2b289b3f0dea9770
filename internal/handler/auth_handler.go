package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, role models.UserRole, req models.LoginRequest) (*models.LoginResponse, error)
	RegisterStudent(ctx context.Context, req models.RegisterStudentRequest) (*models.LoginResponse, error)
	ChangePassword(ctx context.Context, role models.UserRole, principalID string, req models.ChangePasswordRequest) error
	ForgotPassword(ctx context.Context, role models.UserRole, req models.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, role models.UserRole, req models.ResetPasswordRequest) error
}

// AuthHandler wires HTTP endpoints to the auth service. Every account kind has its own
// set of routes.
type AuthHandler struct {
	service authService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Login godoc
// @Summary Authenticate an admin, teacher or student
// @Description The issued token is only accepted by routes of the same account kind.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param kind path string true "admin, teacher or student"
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/{kind}/login [post]
func (h *AuthHandler) Login(role models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if !bindJSON(c, &req, "invalid login payload") {
			return
		}
		res, err := h.service.Login(c.Request.Context(), role, req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, res, nil)
	}
}

// Register godoc
// @Summary Register a student account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterStudentRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/student/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterStudentRequest
	if !bindJSON(c, &req, "invalid registration payload") {
		return
	}
	res, err := h.service.RegisterStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// ForgotPassword godoc
// @Summary Request a password reset email
// @Description Always answers 202 so registered emails cannot be discovered.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param kind path string true "admin, teacher or student"
// @Param payload body models.ForgotPasswordRequest true "Email"
// @Success 202 {object} response.Envelope
// @Router /auth/{kind}/forgot-password [post]
func (h *AuthHandler) ForgotPassword(role models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ForgotPasswordRequest
		if !bindJSON(c, &req, "invalid forgot password payload") {
			return
		}
		if err := h.service.ForgotPassword(c.Request.Context(), role, req); err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, gin.H{"message": "if the account exists a reset link has been sent"})
	}
}

// ResetPassword godoc
// @Summary Set a new password with a reset token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param kind path string true "admin, teacher or student"
// @Param payload body models.ResetPasswordRequest true "Token and new password"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Router /auth/{kind}/reset-password [post]
func (h *AuthHandler) ResetPassword(role models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ResetPasswordRequest
		if !bindJSON(c, &req, "invalid reset password payload") {
			return
		}
		if err := h.service.ResetPassword(c.Request.Context(), role, req); err != nil {
			response.Error(c, err)
			return
		}
		response.NoContent(c)
	}
}

// ChangePassword godoc
// @Summary Change password
// @Description Change password for the current account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param kind path string true "admin, teacher or student"
// @Param payload body models.ChangePasswordRequest true "Passwords"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/{kind}/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.ChangePasswordRequest
	if !bindJSON(c, &req, "invalid change password payload") {
		return
	}
	if err := h.service.ChangePassword(c.Request.Context(), claims.Role, claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
