package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/deepscan/backend/internal/auth"
	"github.com/deepscan/backend/pkg/logger"
)

type AuthHandler struct {
	auth *auth.Service
}

func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{auth: authService}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Name == "" || req.Email == "" {
		return badRequest(c, "name and email are required")
	}
	if len(req.Password) < 8 {
		return badRequest(c, "password must be at least 8 characters")
	}

	session, err := h.auth.Register(c.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
		logger.Error("Registration failed", zap.Error(err))
		return internalError(c, "Registration failed")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    session,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	session, err := h.auth.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
		logger.Error("Login failed", zap.Error(err))
		return internalError(c, "Login failed")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    session,
	})
}

// AdminLogin issues a session only for admin accounts. Valid non-admin
// credentials get the same 401 as wrong ones.
func (h *AuthHandler) AdminLogin(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	session, err := h.auth.AdminLogin(c.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
		logger.Error("Admin login failed", zap.Error(err))
		return internalError(c, "Login failed")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    session,
	})
}

// Me returns the authenticated caller's account.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := h.auth.CurrentUser(c.Context(), auth.UserID(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "account not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    user,
	})
}

// ForgotPassword always reports success so the endpoint cannot be used to
// probe which emails are registered.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return badRequest(c, "email is required")
	}

	if err := h.auth.ForgotPassword(c.Context(), req.Email); err != nil {
		logger.Error("Forgot-password flow failed", zap.Error(err))
		return internalError(c, "Failed to process request")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"message": "If that account exists, a reset link has been sent",
		},
	})
}

// ResetPassword consumes a token from the URL path, falling back to the
// body for clients that post it there.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if token := c.Params("token"); token != "" {
		req.Token = token
	}
	if req.Token == "" {
		return badRequest(c, "token is required")
	}
	if len(req.Password) < 8 {
		return badRequest(c, "password must be at least 8 characters")
	}

	if err := h.auth.ResetPassword(c.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, auth.ErrResetTokenInvalid) {
			return badRequest(c, err.Error())
		}
		logger.Error("Password reset failed", zap.Error(err))
		return internalError(c, "Failed to reset password")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"message": "Password updated",
		},
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

func internalError(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}
