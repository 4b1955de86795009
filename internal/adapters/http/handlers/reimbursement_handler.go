package handlers

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/core/domain"
	"consigaz-valegas/internal/core/services"
	"consigaz-valegas/internal/pkg/pagination"
	"consigaz-valegas/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ReimbursementHandler handles the admin reimbursement pipeline
type ReimbursementHandler struct {
	reimbursementService *services.ReimbursementService
	loc                  *time.Location
	log                  *zap.Logger
}

// NewReimbursementHandler creates a new reimbursement handler
func NewReimbursementHandler(reimbursementService *services.ReimbursementService, loc *time.Location, log *zap.Logger) *ReimbursementHandler {
	if loc == nil {
		loc = time.Local
	}
	return &ReimbursementHandler{
		reimbursementService: reimbursementService,
		loc:                  loc,
		log:                  log,
	}
}

// NoteRequest carries an optional note for approve and mark paid
type NoteRequest struct {
	Notes string `json:"notes"`
}

// RejectRequest carries the mandatory rejection reason
type RejectRequest struct {
	Reason string `json:"reason"`
}

// BulkCreateRequest represents a bulk creation request
type BulkCreateRequest struct {
	DistributorID uint   `json:"distributor_id"`
	VoucherIDs    []uint `json:"voucher_ids"`
}

// parseFilter reads ?status&distributor_id&month&from&to. Dates are
// YYYY-MM-DD; to is inclusive.
func (h *ReimbursementHandler) parseFilter(c *fiber.Ctx) (repositories.ReimbursementFilter, error) {
	distributorID, _ := strconv.ParseUint(c.Query("distributor_id"), 10, 32)
	f := repositories.ReimbursementFilter{
		Status:         c.Query("status"),
		DistributorID:  uint(distributorID),
		ReferenceMonth: c.Query("month"),
	}

	if s := c.Query("from"); s != "" {
		from, err := time.ParseInLocation("2006-01-02", s, h.loc)
		if err != nil {
			return f, domain.Invalid("from", "must be YYYY-MM-DD")
		}
		f.From = &from
	}
	if s := c.Query("to"); s != "" {
		to, err := time.ParseInLocation("2006-01-02", s, h.loc)
		if err != nil {
			return f, domain.Invalid("to", "must be YYYY-MM-DD")
		}
		end := to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		f.To = &end
	}
	return f, nil
}

// List lists reimbursements with table-wide stats
// @Summary List reimbursements
// @Tags Reimbursements
// @Produce json
// @Security BearerAuth
// @Param status query string false "to_validate, approved, paid or rejected"
// @Param distributor_id query int false "Distributor"
// @Param month query string false "Reference month YYYY-MM"
// @Param from query string false "Validated from YYYY-MM-DD"
// @Param to query string false "Validated to YYYY-MM-DD"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Response
// @Router /api/v1/reimbursements [get]
func (h *ReimbursementHandler) List(c *fiber.Ctx) error {
	filter, err := h.parseFilter(c)
	if err != nil {
		return respondError(c, h.log, err)
	}

	page, err := h.reimbursementService.List(c.UserContext(), filter, pagination.FromQuery(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", page)
}

// Get returns one reimbursement with its history
// @Summary Get reimbursement
// @Tags Reimbursements
// @Produce json
// @Security BearerAuth
// @Param id path int true "Reimbursement ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/reimbursements/{id} [get]
func (h *ReimbursementHandler) Get(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid reimbursement ID")
	}

	rb, err := h.reimbursementService.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "", rb)
}

// Create opens a reimbursement by hand
// @Summary Create reimbursement
// @Tags Reimbursements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.CreateInput true "Reimbursement"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/reimbursements [post]
func (h *ReimbursementHandler) Create(c *fiber.Ctx) error {
	var req services.CreateInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	rb, err := h.reimbursementService.Create(c.UserContext(), req, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Created(c, "Reimbursement created", rb)
}

// BulkCreate opens reimbursements for several vouchers of one distributor
// @Summary Bulk create reimbursements
// @Tags Reimbursements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body BulkCreateRequest true "Vouchers"
// @Success 200 {object} response.Response
// @Router /api/v1/reimbursements:bulkCreate [post]
func (h *ReimbursementHandler) BulkCreate(c *fiber.Ctx) error {
	var req BulkCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	result, err := h.reimbursementService.BulkCreate(c.UserContext(), req.DistributorID, req.VoucherIDs, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, fmt.Sprintf("%d created, %d failed", result.Created, result.Failed), result)
}

// Edit changes amount, notes or bank details
// @Summary Edit reimbursement
// @Tags Reimbursements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Reimbursement ID"
// @Param body body services.EditInput true "Fields to change"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/reimbursements/{id} [put]
func (h *ReimbursementHandler) Edit(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid reimbursement ID")
	}

	var req services.EditInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	rb, err := h.reimbursementService.Edit(c.UserContext(), id, req, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Reimbursement updated", rb)
}

// Approve approves a reimbursement
// @Summary Approve reimbursement
// @Tags Reimbursements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Reimbursement ID"
// @Param body body NoteRequest false "Note"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/reimbursements/{id}:approve [post]
func (h *ReimbursementHandler) Approve(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid reimbursement ID")
	}

	var req NoteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "Invalid request body")
		}
	}

	rb, err := h.reimbursementService.Approve(c.UserContext(), id, req.Notes, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Reimbursement approved", rb)
}

// Reject rejects a reimbursement
// @Summary Reject reimbursement
// @Tags Reimbursements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Reimbursement ID"
// @Param body body RejectRequest true "Reason"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/reimbursements/{id}:reject [post]
func (h *ReimbursementHandler) Reject(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid reimbursement ID")
	}

	var req RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	rb, err := h.reimbursementService.Reject(c.UserContext(), id, req.Reason, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Reimbursement rejected", rb)
}

// MarkPaid marks an approved reimbursement as paid
// @Summary Mark reimbursement paid
// @Tags Reimbursements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Reimbursement ID"
// @Param body body NoteRequest false "Note"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/reimbursements/{id}:markPaid [post]
func (h *ReimbursementHandler) MarkPaid(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid reimbursement ID")
	}

	var req NoteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "Invalid request body")
		}
	}

	rb, err := h.reimbursementService.MarkPaid(c.UserContext(), id, req.Notes, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Reimbursement paid", rb)
}

// Upload attaches proof documents
// @Summary Upload proofs
// @Description Multipart fields invoice, receipt and payment_proof; pdf, jpg, jpeg, png or xml up to 10MB each
// @Tags Reimbursements
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "Reimbursement ID"
// @Param invoice formData file false "Invoice"
// @Param receipt formData file false "Receipt"
// @Param payment_proof formData file false "Payment proof"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/reimbursements/{id}:upload [post]
func (h *ReimbursementHandler) Upload(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid reimbursement ID")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return response.BadRequest(c, "Invalid multipart form")
	}

	var uploads []services.ProofUpload
	for _, slot := range domain.ProofSlots {
		files := form.File[string(slot)]
		if len(files) == 0 {
			continue
		}
		if len(files) > 1 {
			return response.BadRequest(c, "Only one file per document type")
		}

		f, err := files[0].Open()
		if err != nil {
			return response.BadRequest(c, "Could not read "+string(slot))
		}
		defer f.Close()

		uploads = append(uploads, services.ProofUpload{
			Slot:     slot,
			Filename: files[0].Filename,
			Size:     files[0].Size,
			Content:  f,
		})
	}

	rb, err := h.reimbursementService.AttachProof(c.UserContext(), id, uploads, actorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Documents attached", rb)
}

// Download streams a stored proof document
// @Summary Download proof
// @Tags Reimbursements
// @Produce octet-stream
// @Security BearerAuth
// @Param id path int true "Reimbursement ID"
// @Param slot path string true "invoice, receipt or payment_proof"
// @Success 200 {file} file
// @Failure 404 {object} response.Response
// @Router /api/v1/reimbursements/{id}/files/{slot} [get]
func (h *ReimbursementHandler) Download(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid reimbursement ID")
	}

	rc, name, err := h.reimbursementService.OpenProof(c.UserContext(), id, domain.ProofSlot(c.Params("slot")))
	if err != nil {
		return respondError(c, h.log, err)
	}

	c.Attachment(name)
	return c.SendStream(rc)
}

// Delete removes a reimbursement
// @Summary Delete reimbursement
// @Tags Reimbursements
// @Produce json
// @Security BearerAuth
// @Param id path int true "Reimbursement ID"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/reimbursements/{id} [delete]
func (h *ReimbursementHandler) Delete(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid reimbursement ID")
	}

	if err := h.reimbursementService.Delete(c.UserContext(), id, actorFrom(c)); err != nil {
		return respondError(c, h.log, err)
	}
	return response.Success(c, "Reimbursement deleted", nil)
}

// ExportCSV downloads the filtered reimbursements as CSV
// @Summary Export reimbursements
// @Tags Reimbursements
// @Produce text/csv
// @Security BearerAuth
// @Param status query string false "Status"
// @Param distributor_id query int false "Distributor"
// @Param month query string false "Reference month YYYY-MM"
// @Success 200 {file} file
// @Router /api/v1/reimbursements:exportCsv [get]
func (h *ReimbursementHandler) ExportCSV(c *fiber.Ctx) error {
	filter, err := h.parseFilter(c)
	if err != nil {
		return respondError(c, h.log, err)
	}

	var buf bytes.Buffer
	if _, err := h.reimbursementService.ExportCSV(c.UserContext(), filter, &buf); err != nil {
		return respondError(c, h.log, err)
	}

	return response.CSV(c, fmt.Sprintf("reimbursements-%s.csv", time.Now().In(h.loc).Format("20060102")), buf.Bytes())
}

// PendingForDistributor lists a distributor's redeemed vouchers without a claim
// @Summary Pending reimbursements of a distributor
// @Tags Reimbursements
// @Produce json
// @Security BearerAuth
// @Param distributorId path int true "Distributor ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/reimbursements/pending/{distributorId} [get]
func (h *ReimbursementHandler) PendingForDistributor(c *fiber.Ctx) error {
	id, ok := parseID(c, "distributorId")
	if !ok {
		return response.BadRequest(c, "Invalid distributor ID")
	}

	vouchers, err := h.reimbursementService.ListPendingForDistributor(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return response.Items(c, "vouchers", vouchers)
}
