package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 2 * time.Second

// HealthCheck reports whether one dependency answers
type HealthCheck func(ctx context.Context) error

// HealthHandler handles health check endpoints
type HealthHandler struct {
	mode   string
	checks map[string]HealthCheck
}

// NewHealthHandler creates a health handler reporting the given dependency checks
func NewHealthHandler(mode string, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{mode: mode, checks: checks}
}

// Root handles root endpoint
// @Summary Root endpoint
// @Description Returns API status
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "consigaz-valegas",
		"mode":    h.mode,
		"docs":    "/swagger/index.html",
	})
}

// HealthCheck runs every dependency check. Any failure turns the answer into 503.
// @Summary Health check
// @Description Check API and database health
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	status := fiber.StatusOK
	results := fiber.Map{"api": "healthy"}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = "unhealthy"
			status = fiber.StatusServiceUnavailable
			continue
		}
		results[name] = "healthy"
	}

	overall := "ok"
	if status != fiber.StatusOK {
		overall = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{"status": overall, "checks": results})
}

// APIInfo handles API v1 info
// @Summary API v1 Info
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1 [get]
func (h *HealthHandler) APIInfo(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Consigaz Vale-Gás API",
		"version": "1.0.0",
	})
}
