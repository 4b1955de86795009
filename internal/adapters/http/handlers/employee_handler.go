package handlers

import (
	"consigaz-valegas/internal/core/services"
	"consigaz-valegas/internal/pkg/pagination"
	"consigaz-valegas/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// EmployeeHandler serves employees their own vouchers
type EmployeeHandler struct {
	voucherService *services.VoucherService
	log            *zap.Logger
}

// NewEmployeeHandler creates a new employee handler
func NewEmployeeHandler(voucherService *services.VoucherService, log *zap.Logger) *EmployeeHandler {
	return &EmployeeHandler{
		voucherService: voucherService,
		log:            log,
	}
}

// CurrentVouchers lists the caller's vouchers of the current month
// @Summary My vouchers
// @Description Vouchers of the current reference month with the days left on each
// @Tags Employee
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /api/v1/employee/vouchers [get]
func (h *EmployeeHandler) CurrentVouchers(c *fiber.Ctx) error {
	employeeID, _ := c.Locals("employeeID").(uint)
	month, err := h.voucherService.CurrentForEmployee(c.UserContext(), employeeID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", month)
}

// VoucherHistory pages through every voucher the caller received
// @Summary My voucher history
// @Tags Employee
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Response
// @Router /api/v1/employee/vouchers/history [get]
func (h *EmployeeHandler) VoucherHistory(c *fiber.Ctx) error {
	employeeID, _ := c.Locals("employeeID").(uint)
	page, err := h.voucherService.HistoryForEmployee(c.UserContext(), employeeID, pagination.FromQuery(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", page)
}
