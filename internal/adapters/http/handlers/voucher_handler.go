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

// VoucherHandler handles admin voucher endpoints
type VoucherHandler struct {
	voucherService *services.VoucherService
	log            *zap.Logger
}

// NewVoucherHandler creates a new voucher handler
func NewVoucherHandler(voucherService *services.VoucherService, log *zap.Logger) *VoucherHandler {
	return &VoucherHandler{
		voucherService: voucherService,
		log:            log,
	}
}

// IssueRequest represents a single issuance request
type IssueRequest struct {
	EmployeeID uint `json:"employee_id"`
}

// IssueMonthlyRequest represents a batch request
type IssueMonthlyRequest struct {
	ReferenceMonth string `json:"reference_month"`
}

// Issue issues one voucher for the current month
// @Summary Issue voucher
// @Description Issue one voucher to an active employee below the monthly quota
// @Tags Vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body IssueRequest true "Employee"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/vouchers:issue [post]
func (h *VoucherHandler) Issue(c *fiber.Ctx) error {
	var req IssueRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.EmployeeID == 0 {
		return response.BadRequest(c, "Employee is required")
	}

	v, err := h.voucherService.IssueOne(c.UserContext(), req.EmployeeID, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return response.Created(c, "Voucher issued", v)
}

// IssueMonthly runs the monthly batch
// @Summary Issue monthly batch
// @Description Top every active employee up to the monthly quota
// @Tags Vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body IssueMonthlyRequest false "Reference month (defaults to current)"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/vouchers:issueMonthly [post]
func (h *VoucherHandler) IssueMonthly(c *fiber.Ctx) error {
	var req IssueMonthlyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "Invalid request body")
		}
	}

	result, err := h.voucherService.IssueMonthlyBatch(c.UserContext(), req.ReferenceMonth, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return response.Success(c, "Monthly batch finished", result)
}

// List lists vouchers
// @Summary List vouchers
// @Tags Vouchers
// @Produce json
// @Security BearerAuth
// @Param status query string false "active, redeemed or expired"
// @Param month query string false "Reference month YYYY-MM"
// @Param employee_id query int false "Employee"
// @Param distributor_id query int false "Distributor"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Response
// @Router /api/v1/vouchers [get]
func (h *VoucherHandler) List(c *fiber.Ctx) error {
	employeeID, _ := strconv.ParseUint(c.Query("employee_id"), 10, 32)
	distributorID, _ := strconv.ParseUint(c.Query("distributor_id"), 10, 32)

	filter := repositories.VoucherFilter{
		Status:         c.Query("status"),
		ReferenceMonth: c.Query("month"),
		EmployeeID:     uint(employeeID),
		DistributorID:  uint(distributorID),
	}

	page, err := h.voucherService.List(c.UserContext(), filter, pagination.FromQuery(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return response.Success(c, "", page)
}

// Stats counts vouchers per status
// @Summary Voucher stats
// @Tags Vouchers
// @Produce json
// @Security BearerAuth
// @Param month query string false "Reference month YYYY-MM"
// @Success 200 {object} response.Response
// @Router /api/v1/vouchers/stats [get]
func (h *VoucherHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.voucherService.Stats(c.UserContext(), c.Query("month"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", stats)
}

// ListForEmployee lists an employee's vouchers
// @Summary Employee vouchers
// @Tags Employees
// @Produce json
// @Security BearerAuth
// @Param id path int true "Employee ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/employees/{id}/vouchers [get]
func (h *VoucherHandler) ListForEmployee(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid employee ID")
	}

	page, err := h.voucherService.ListForEmployee(c.UserContext(), id, pagination.FromQuery(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", page)
}
