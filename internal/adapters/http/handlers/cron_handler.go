package handlers

import (
	"consigaz-valegas/internal/core/domain"
	"consigaz-valegas/internal/core/services"
	"consigaz-valegas/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CronHandler exposes the scheduled jobs to external triggers
type CronHandler struct {
	cronService *services.CronService
}

// NewCronHandler creates a new cron handler
func NewCronHandler(cronService *services.CronService) *CronHandler {
	return &CronHandler{cronService: cronService}
}

func (h *CronHandler) respond(c *fiber.Ctx, run *services.JobRun) error {
	if err := run.Err(); err != nil {
		status := fiber.StatusInternalServerError
		if domain.IsBusiness(err) {
			status = fiber.StatusConflict
		}
		return response.Error(c, status, err.Error(), run)
	}
	msg := "Job finished"
	if run.Skipped {
		msg = "Job skipped"
	}
	return response.Success(c, msg, run)
}

// GenerateMonthly runs the monthly issuance check
// @Summary Run monthly issuance
// @Description Runs only on the configured generation day unless force=true
// @Tags Cron
// @Produce json
// @Param x-cron-key header string true "Cron key"
// @Param force query bool false "Ignore the generation day"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/cron/generate-monthly [post]
func (h *CronHandler) GenerateMonthly(c *fiber.Ctx) error {
	return h.respond(c, h.cronService.RunMonthlyIssuance(c.UserContext(), c.QueryBool("force")))
}

// ExpireVouchers runs the expiry sweep
// @Summary Run expiry sweep
// @Tags Cron
// @Produce json
// @Param x-cron-key header string true "Cron key"
// @Success 200 {object} response.Response
// @Router /api/v1/cron/expire-vouchers [post]
func (h *CronHandler) ExpireVouchers(c *fiber.Ctx) error {
	return h.respond(c, h.cronService.RunExpirySweep(c.UserContext()))
}

// ExpiryReminders runs the reminder sweep
// @Summary Run expiry reminders
// @Tags Cron
// @Produce json
// @Param x-cron-key header string true "Cron key"
// @Success 200 {object} response.Response
// @Router /api/v1/cron/expiry-reminders [post]
func (h *CronHandler) ExpiryReminders(c *fiber.Ctx) error {
	return h.respond(c, h.cronService.RunExpiryReminders(c.UserContext()))
}

// Status reports schedules and last runs
// @Summary Cron status
// @Tags Cron
// @Produce json
// @Param x-cron-key header string true "Cron key"
// @Success 200 {object} response.Response
// @Router /api/v1/cron/status [get]
func (h *CronHandler) Status(c *fiber.Ctx) error {
	return response.Success(c, "", h.cronService.Status(c.UserContext()))
}
