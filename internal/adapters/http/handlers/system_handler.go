package handlers

import (
	"strconv"

	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/core/services"
	"consigaz-valegas/internal/pkg/pagination"
	"consigaz-valegas/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SystemHandler handles settings, audit logs and webhook stats
type SystemHandler struct {
	settingsService     *services.SettingsService
	auditService        *services.AuditService
	notificationService *services.NotificationService
	log                 *zap.Logger
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(
	settingsService *services.SettingsService,
	auditService *services.AuditService,
	notificationService *services.NotificationService,
	log *zap.Logger,
) *SystemHandler {
	return &SystemHandler{
		settingsService:     settingsService,
		auditService:        auditService,
		notificationService: notificationService,
		log:                 log,
	}
}

// UpdateSettingRequest represents a setting change
type UpdateSettingRequest struct {
	Value string `json:"value"`
}

// ListSettings lists business settings
// @Summary List settings
// @Tags Settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /api/v1/settings [get]
func (h *SystemHandler) ListSettings(c *fiber.Ctx) error {
	settings, err := h.settingsService.List(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", settings)
}

// UpdateSetting changes one setting
// @Summary Update setting
// @Tags Settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param key path string true "Setting key"
// @Param body body UpdateSettingRequest true "New value"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/settings/{key} [put]
func (h *SystemHandler) UpdateSetting(c *fiber.Ctx) error {
	var req UpdateSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	setting, err := h.settingsService.Update(c.UserContext(), c.Params("key"), req.Value, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Setting updated", setting)
}

// AuditLogs lists audit log rows
// @Summary Audit logs
// @Tags System
// @Produce json
// @Security BearerAuth
// @Param action query string false "Action"
// @Param entity query string false "Entity"
// @Param actor_type query string false "admin, distributor, cron or system"
// @Param page query int false "Page"
// @Success 200 {object} response.Response
// @Router /api/v1/audit-logs [get]
func (h *SystemHandler) AuditLogs(c *fiber.Ctx) error {
	filter := repositories.AuditFilter{
		Action:    c.Query("action"),
		Entity:    c.Query("entity"),
		ActorType: c.Query("actor_type"),
	}
	page, err := h.auditService.List(c.UserContext(), filter, pagination.FromQuery(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", page)
}

// WebhookStats summarizes notification deliveries
// @Summary Webhook stats
// @Tags System
// @Produce json
// @Security BearerAuth
// @Param days query int false "Window in days (default 30)"
// @Success 200 {object} response.Response
// @Router /api/v1/webhooks/stats [get]
func (h *SystemHandler) WebhookStats(c *fiber.Ctx) error {
	days, _ := strconv.Atoi(c.Query("days", "30"))
	stats, err := h.notificationService.Stats(c.UserContext(), days)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", stats)
}
