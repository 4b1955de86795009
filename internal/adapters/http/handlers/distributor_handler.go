package handlers

import (
	"consigaz-valegas/internal/core/services"
	"consigaz-valegas/internal/pkg/pagination"
	"consigaz-valegas/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// DistributorHandler handles the distribution point panel
type DistributorHandler struct {
	redemptionService    *services.RedemptionService
	reimbursementService *services.ReimbursementService
	log                  *zap.Logger
}

// NewDistributorHandler creates a new distributor handler
func NewDistributorHandler(
	redemptionService *services.RedemptionService,
	reimbursementService *services.ReimbursementService,
	log *zap.Logger,
) *DistributorHandler {
	return &DistributorHandler{
		redemptionService:    redemptionService,
		reimbursementService: reimbursementService,
		log:                  log,
	}
}

// RedeemRequest represents a redemption request
type RedeemRequest struct {
	Code string `json:"code"`
}

// Inspect checks a code without redeeming it
// @Summary Inspect voucher
// @Description Report whether a code can be redeemed now. Always 200; see valid and reason.
// @Tags Distributor
// @Produce json
// @Security BearerAuth
// @Param code path string true "Voucher code"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/distributor/vouchers/{code} [get]
func (h *DistributorHandler) Inspect(c *fiber.Ctx) error {
	result, err := h.redemptionService.Inspect(c.UserContext(), c.Params("code"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, result.Message, result)
}

// Redeem consumes a code at the caller's distribution point
// @Summary Redeem voucher
// @Description Redeem a code. A code that cannot be redeemed is a 200 with valid=false.
// @Tags Distributor
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body RedeemRequest true "Voucher code"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/distributor/vouchers:redeem [post]
func (h *DistributorHandler) Redeem(c *fiber.Ctx) error {
	var req RedeemRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	distributorID, _ := c.Locals("distributorID").(uint)
	result, err := h.redemptionService.Redeem(c.UserContext(), req.Code, distributorID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, result.Message, result)
}

// History lists the caller's redemptions
// @Summary Redemption history
// @Tags Distributor
// @Produce json
// @Security BearerAuth
// @Param month query string false "Reference month YYYY-MM"
// @Param page query int false "Page"
// @Success 200 {object} response.Response
// @Router /api/v1/distributor/history [get]
func (h *DistributorHandler) History(c *fiber.Ctx) error {
	distributorID, _ := c.Locals("distributorID").(uint)
	page, err := h.redemptionService.History(c.UserContext(), distributorID, c.Query("month"), pagination.FromQuery(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", page)
}

// Dashboard summarises the caller's redemptions
// @Summary Distributor dashboard
// @Description Redemptions today and this month, the latest five and the last six reference months
// @Tags Distributor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /api/v1/distributor/dashboard [get]
func (h *DistributorHandler) Dashboard(c *fiber.Ctx) error {
	distributorID, _ := c.Locals("distributorID").(uint)
	dashboard, err := h.redemptionService.Dashboard(c.UserContext(), distributorID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", dashboard)
}

// PendingReimbursements lists the caller's redeemed vouchers without a claim
// @Summary Pending reimbursements
// @Tags Distributor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /api/v1/distributor/reimbursements/pending [get]
func (h *DistributorHandler) PendingReimbursements(c *fiber.Ctx) error {
	distributorID, _ := c.Locals("distributorID").(uint)
	vouchers, err := h.reimbursementService.ListPendingForDistributor(c.UserContext(), distributorID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Items(c, "vouchers", vouchers)
}
