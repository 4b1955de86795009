package handlers

import (
	"errors"
	"time"

	"consigaz-valegas/internal/config"
	"consigaz-valegas/internal/core/services"
	"consigaz-valegas/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *services.AuthService
	cfg         *config.Config
	log         *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cfg:         cfg,
		log:         log,
	}
}

// LoginRequest represents login request body
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// LoginAdmin handles admin panel login
// @Summary Admin login
// @Description Authenticate an ADMIN or SUPERVISOR by username
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "Login credentials"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/admin/login [post]
func (h *AuthHandler) LoginAdmin(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	result, err := h.authService.LoginAdmin(c.UserContext(), services.LoginInput{Login: req.Login, Password: req.Password}, getClientIP(c))
	if err != nil {
		return h.loginError(c, err)
	}

	h.setAuthCookie(c, result)
	return response.Success(c, "Login successful", result)
}

// LoginDistributor handles distributor login
// @Summary Distributor login
// @Description Authenticate a distribution point by email
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "Login credentials"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/distributor/login [post]
func (h *AuthHandler) LoginDistributor(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	result, err := h.authService.LoginDistributor(c.UserContext(), services.LoginInput{Login: req.Login, Password: req.Password}, getClientIP(c))
	if err != nil {
		return h.loginError(c, err)
	}

	h.setAuthCookie(c, result)
	return response.Success(c, "Login successful", result)
}

// LoginEmployee handles employee login
// @Summary Employee login
// @Description Authenticate an employee by CPF or email
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "Login credentials"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/employee/login [post]
func (h *AuthHandler) LoginEmployee(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	result, err := h.authService.LoginEmployee(c.UserContext(), services.LoginInput{Login: req.Login, Password: req.Password}, getClientIP(c))
	if err != nil {
		return h.loginError(c, err)
	}

	h.setAuthCookie(c, result)
	return response.Success(c, "Login successful", result)
}

// Logout clears the auth cookie
// @Summary Logout
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   h.cfg.IsProd(),
		SameSite: "Lax",
	})
	return response.Success(c, "Logout successful", nil)
}

// ChangePassword replaces the caller's password
// @Summary Change password
// @Description Employees and distributors change their own password
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.PasswordChange true "Current and new password"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/auth/password [post]
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var req services.PasswordChange
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.authService.ChangePassword(c.UserContext(), actorFrom(c), req); err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Password changed", nil)
}

// Me returns the caller's token claims
// @Summary Current user
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return response.Success(c, "", fiber.Map{
		"user_id":        c.Locals("userID"),
		"distributor_id": c.Locals("distributorID"),
		"employee_id":    c.Locals("employeeID"),
		"username":       c.Locals("username"),
		"role":           c.Locals("role"),
	})
}

func (h *AuthHandler) loginError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		return response.Unauthorized(c, "Invalid credentials")
	case errors.Is(err, services.ErrAccountInactive):
		return response.Forbidden(c, "Account is inactive")
	}
	return respondError(c, h.log, err)
}

func (h *AuthHandler) setAuthCookie(c *fiber.Ctx, result *services.AuthResponse) {
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    result.AccessToken,
		Expires:  result.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.cfg.IsProd(),
		SameSite: "Lax",
	})
}
