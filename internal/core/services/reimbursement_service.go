package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"consigaz-valegas/internal/adapters/events"
	"consigaz-valegas/internal/adapters/persistence/models"
	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/core/domain"
	"consigaz-valegas/internal/pkg/pagination"
	"consigaz-valegas/internal/pkg/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// MaxProofSize is the largest accepted proof document
	MaxProofSize = 10 << 20
)

var allowedProofExt = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".xml":  true,
}

var allStatuses = []string{
	string(domain.ReimbursementToValidate),
	string(domain.ReimbursementApproved),
	string(domain.ReimbursementPaid),
	string(domain.ReimbursementRejected),
}

// ReimbursementService drives the reimbursement approval pipeline
type ReimbursementService struct {
	repo         repositories.ReimbursementRepository
	vouchers     repositories.VoucherRepository
	distributors repositories.DistributorRepository
	admins       repositories.AdminUserRepository
	store        storage.Store
	rules        Rules
	publisher    events.Publisher
	audit        *AuditService
	log          *zap.Logger
	now          Clock
}

// NewReimbursementService creates a new reimbursement service
func NewReimbursementService(
	repo repositories.ReimbursementRepository,
	vouchers repositories.VoucherRepository,
	distributors repositories.DistributorRepository,
	admins repositories.AdminUserRepository,
	store storage.Store,
	cfg ConfigProvider,
	publisher events.Publisher,
	audit *AuditService,
	loc *time.Location,
	log *zap.Logger,
) *ReimbursementService {
	return &ReimbursementService{
		repo:         repo,
		vouchers:     vouchers,
		distributors: distributors,
		admins:       admins,
		store:        store,
		rules:        NewRules(cfg),
		publisher:    publisher,
		audit:        audit,
		log:          log.Named("reimbursements"),
		now:          clockIn(loc),
	}
}

// ============================================================
// Creation
// ============================================================

// CreateFromRedemption opens the claim for a voucher just redeemed at an
// external distributor, with the default amount and the distributor's bank
// details.
func (s *ReimbursementService) CreateFromRedemption(ctx context.Context, v *models.Voucher, d *models.Distributor, at time.Time) (*models.Reimbursement, error) {
	rb := &models.Reimbursement{
		VoucherID:      v.ID,
		DistributorID:  d.ID,
		EmployeeID:     v.EmployeeID,
		Amount:         s.rules.DefaultReimbursementAmount(ctx),
		ReferenceMonth: v.ReferenceMonth,
		Status:         string(domain.ReimbursementToValidate),
		Notes:          "created automatically on redemption",
		ValidatedAt:    &at,
	}
	copyBankDetails(rb, d)

	if err := s.repo.Create(ctx, rb); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, domain.Conflict("voucher %s already has a reimbursement", v.Code)
		}
		return nil, domain.Persistence("create reimbursement", err)
	}

	s.appendHistory(ctx, rb.ID, SystemActor, "", rb.Status, models.HistoryCreated, "created automatically on redemption")
	s.publish(events.ReimbursementCreated, rb, v.Code)
	return rb, nil
}

// CreateInput is a manual reimbursement request
type CreateInput struct {
	VoucherID      uint             `json:"voucher_id"`
	DistributorID  uint             `json:"distributor_id"`
	EmployeeID     uint             `json:"employee_id"`
	Amount         *decimal.Decimal `json:"amount"`
	ReferenceMonth string           `json:"reference_month"`
	Notes          string           `json:"notes"`
	Bank           string           `json:"bank"`
	Agency         string           `json:"agency"`
	Account        string           `json:"account"`
	AccountType    string           `json:"account_type"`
	PixKey         string           `json:"pix_key"`
}

// Create opens a claim for a redeemed voucher that has none yet
func (s *ReimbursementService) Create(ctx context.Context, in CreateInput, actor Actor) (*models.Reimbursement, error) {
	if in.VoucherID == 0 {
		return nil, domain.Invalid("voucher_id", "voucher is required")
	}

	v, err := s.vouchers.GetByID(ctx, in.VoucherID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, domain.NotFound("voucher")
	}
	if err != nil {
		return nil, domain.Persistence("get voucher", err)
	}
	if v.Status != string(domain.VoucherRedeemed) || v.DistributorID == nil {
		return nil, &domain.InvalidStateError{
			Entity:   "voucher",
			Current:  v.Status,
			Required: []string{string(domain.VoucherRedeemed)},
			Reason:   "voucher has not been redeemed",
		}
	}
	if in.DistributorID != 0 && in.DistributorID != *v.DistributorID {
		return nil, domain.Invalid("distributor_id", "voucher was redeemed at another distributor")
	}
	if in.EmployeeID != 0 && in.EmployeeID != v.EmployeeID {
		return nil, domain.Invalid("employee_id", "voucher belongs to another employee")
	}
	if in.ReferenceMonth != "" && in.ReferenceMonth != v.ReferenceMonth {
		return nil, domain.Invalid("reference_month", "voucher belongs to another month")
	}

	exists, err := s.repo.ExistsForVoucher(ctx, v.ID)
	if err != nil {
		return nil, domain.Persistence("check reimbursement", err)
	}
	if exists {
		return nil, domain.Conflict("voucher %s already has a reimbursement", v.Code)
	}

	d, err := s.distributors.GetByID(ctx, *v.DistributorID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, domain.NotFound("distributor")
	}
	if err != nil {
		return nil, domain.Persistence("get distributor", err)
	}

	amount := s.rules.DefaultReimbursementAmount(ctx)
	if in.Amount != nil {
		if in.Amount.IsNegative() {
			return nil, domain.Invalid("amount", "amount must not be negative")
		}
		amount = in.Amount.Round(2)
	}

	validated := s.now()
	if v.RedeemedAt != nil {
		validated = *v.RedeemedAt
	}

	rb := &models.Reimbursement{
		VoucherID:      v.ID,
		DistributorID:  d.ID,
		EmployeeID:     v.EmployeeID,
		Amount:         amount,
		ReferenceMonth: v.ReferenceMonth,
		Status:         string(domain.ReimbursementToValidate),
		Notes:          strings.TrimSpace(in.Notes),
		ValidatedAt:    &validated,
	}
	copyBankDetails(rb, d)
	overrideBankDetails(rb, in.Bank, in.Agency, in.Account, in.AccountType, in.PixKey)

	if err := s.repo.Create(ctx, rb); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, domain.Conflict("voucher %s already has a reimbursement", v.Code)
		}
		return nil, domain.Persistence("create reimbursement", err)
	}

	s.appendHistory(ctx, rb.ID, actor, "", rb.Status, models.HistoryCreated, rb.Notes)
	s.audit.Record(ctx, AuditEntry{
		Actor:    actor,
		Action:   "create_reimbursement",
		Entity:   "reimbursement",
		EntityID: rb.ID,
		Details:  map[string]interface{}{"voucher_id": v.ID, "amount": amount.StringFixed(2)},
	})
	s.publish(events.ReimbursementCreated, rb, v.Code)
	return rb, nil
}

// BulkItemResult is the outcome for one voucher of a bulk request
type BulkItemResult struct {
	VoucherID       uint   `json:"voucher_id"`
	ReimbursementID uint   `json:"reimbursement_id,omitempty"`
	Error           string `json:"error,omitempty"`
}

// BulkResult summarizes a bulk creation
type BulkResult struct {
	Created int              `json:"created"`
	Failed  int              `json:"failed"`
	Items   []BulkItemResult `json:"items"`
}

// BulkCreate opens claims for several of one distributor's redeemed
// vouchers; each voucher succeeds or fails on its own.
func (s *ReimbursementService) BulkCreate(ctx context.Context, distributorID uint, voucherIDs []uint, actor Actor) (*BulkResult, error) {
	if distributorID == 0 {
		return nil, domain.Invalid("distributor_id", "distributor is required")
	}
	if len(voucherIDs) == 0 {
		return nil, domain.Invalid("voucher_ids", "at least one voucher is required")
	}

	res := &BulkResult{Items: make([]BulkItemResult, 0, len(voucherIDs))}
	for _, id := range voucherIDs {
		item := BulkItemResult{VoucherID: id}
		rb, err := s.Create(ctx, CreateInput{VoucherID: id, DistributorID: distributorID}, actor)
		if err != nil {
			item.Error = err.Error()
			res.Failed++
		} else {
			item.ReimbursementID = rb.ID
			res.Created++
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

func copyBankDetails(rb *models.Reimbursement, d *models.Distributor) {
	rb.Bank = d.Bank
	rb.Agency = d.Agency
	rb.Account = d.Account
	rb.AccountType = d.AccountType
	rb.PixKey = d.PixKey
}

func overrideBankDetails(rb *models.Reimbursement, bank, agency, account, accountType, pix string) {
	if v := strings.TrimSpace(bank); v != "" {
		rb.Bank = v
	}
	if v := strings.TrimSpace(agency); v != "" {
		rb.Agency = v
	}
	if v := strings.TrimSpace(account); v != "" {
		rb.Account = v
	}
	if v := strings.TrimSpace(accountType); v != "" {
		rb.AccountType = v
	}
	if v := strings.TrimSpace(pix); v != "" {
		rb.PixKey = v
	}
}

// ============================================================
// Reads
// ============================================================

// Get returns a reimbursement with voucher, parties and history
func (s *ReimbursementService) Get(ctx context.Context, id uint) (*models.Reimbursement, error) {
	rb, err := s.repo.GetDetailed(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, domain.NotFound("reimbursement")
	}
	return rb, domain.Persistence("get reimbursement", err)
}

// ReimbursementPage is one filtered page plus table-wide stats
type ReimbursementPage struct {
	Reimbursements []models.Reimbursement           `json:"reimbursements"`
	Meta           pagination.Meta                  `json:"pagination"`
	Stats          *repositories.ReimbursementStats `json:"stats"`
}

// List returns a filtered page. Stats always cover the whole table.
func (s *ReimbursementService) List(ctx context.Context, f repositories.ReimbursementFilter, p pagination.Params) (*ReimbursementPage, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	rows, total, err := s.repo.List(ctx, f, p.Offset, p.Limit)
	if err != nil {
		return nil, domain.Persistence("list reimbursements", err)
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, domain.Persistence("reimbursement stats", err)
	}
	return &ReimbursementPage{Reimbursements: rows, Meta: pagination.MetaFor(p, total), Stats: stats}, nil
}

// ListPendingForDistributor returns the distributor's redeemed vouchers
// that still have no reimbursement
func (s *ReimbursementService) ListPendingForDistributor(ctx context.Context, distributorID uint) ([]models.Voucher, error) {
	if _, err := s.distributors.GetByID(ctx, distributorID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, domain.NotFound("distributor")
		}
		return nil, domain.Persistence("get distributor", err)
	}
	rows, err := s.vouchers.ListUnclaimed(ctx, distributorID)
	return rows, domain.Persistence("list unclaimed vouchers", err)
}

func validateFilter(f repositories.ReimbursementFilter) error {
	if f.Status != "" && !domain.ReimbursementStatus(f.Status).IsValid() {
		return domain.Invalid("status", "unknown status")
	}
	if f.ReferenceMonth != "" && !domain.ValidReferenceMonth(f.ReferenceMonth) {
		return domain.Invalid("reference_month", "must be YYYY-MM")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return domain.Invalid("to", "end date is before start date")
	}
	return nil
}

// ============================================================
// Edits
// ============================================================

// EditInput carries the fields to change; nil means unchanged
type EditInput struct {
	Amount      *decimal.Decimal `json:"amount"`
	Notes       *string          `json:"notes"`
	Bank        *string          `json:"bank"`
	Agency      *string          `json:"agency"`
	Account     *string          `json:"account"`
	AccountType *string          `json:"account_type"`
	PixKey      *string          `json:"pix_key"`
}

// Edit changes amount, notes or bank details while the claim is open
func (s *ReimbursementService) Edit(ctx context.Context, id uint, in EditInput, actor Actor) (*models.Reimbursement, error) {
	changes := map[string]interface{}{}
	var fields []string

	if in.Amount != nil {
		if in.Amount.IsNegative() {
			return nil, domain.Invalid("amount", "amount must not be negative")
		}
		changes["amount"] = in.Amount.Round(2)
		fields = append(fields, "amount")
	}
	for _, f := range []struct {
		column string
		value  *string
	}{
		{"notes", in.Notes},
		{"bank", in.Bank},
		{"agency", in.Agency},
		{"account", in.Account},
		{"account_type", in.AccountType},
		{"pix_key", in.PixKey},
	} {
		if f.value != nil {
			changes[f.column] = strings.TrimSpace(*f.value)
			fields = append(fields, f.column)
		}
	}
	if len(changes) == 0 {
		return nil, domain.Invalid("", "no fields to update")
	}

	rb, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	status := domain.ReimbursementStatus(rb.Status)
	if !status.Editable() {
		return nil, domain.InvalidState("reimbursement", rb.Status,
			string(domain.ReimbursementToValidate), string(domain.ReimbursementApproved))
	}

	editable := []string{string(domain.ReimbursementToValidate), string(domain.ReimbursementApproved)}
	n, err := s.repo.UpdateWhereStatusIn(ctx, id, editable, changes)
	if err != nil {
		return nil, domain.Persistence("edit reimbursement", err)
	}
	if n == 0 {
		return nil, s.lostRace(ctx, id, editable...)
	}

	note := "changed " + strings.Join(fields, ", ")
	s.appendHistory(ctx, id, actor, rb.Status, rb.Status, models.HistoryEdited, note)
	s.audit.Record(ctx, AuditEntry{
		Actor:    actor,
		Action:   "edit_reimbursement",
		Entity:   "reimbursement",
		EntityID: id,
		Details:  map[string]interface{}{"fields": fields},
	})
	return s.Get(ctx, id)
}

// ============================================================
// Transitions
// ============================================================

// Approve moves a claim from to_validate to approved
func (s *ReimbursementService) Approve(ctx context.Context, id uint, note string, actor Actor) (*models.Reimbursement, error) {
	now := s.now()
	return s.transition(ctx, id, domain.ReimbursementToValidate, domain.ReimbursementApproved, map[string]interface{}{
		"approved_at": now,
		"approved_by": actor.idPtr(),
	}, models.HistoryApproved, strings.TrimSpace(note), events.ReimbursementApproved, actor)
}

// Reject moves a claim from to_validate to rejected. A reason is required.
func (s *ReimbursementService) Reject(ctx context.Context, id uint, reason string, actor Actor) (*models.Reimbursement, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Invalid("reason", "rejection reason is required")
	}
	now := s.now()
	return s.transition(ctx, id, domain.ReimbursementToValidate, domain.ReimbursementRejected, map[string]interface{}{
		"rejected_at":      now,
		"rejected_by":      actor.idPtr(),
		"rejection_reason": reason,
	}, models.HistoryRejected, reason, events.ReimbursementRejected, actor)
}

// MarkPaid moves a claim from approved to paid
func (s *ReimbursementService) MarkPaid(ctx context.Context, id uint, note string, actor Actor) (*models.Reimbursement, error) {
	now := s.now()
	return s.transition(ctx, id, domain.ReimbursementApproved, domain.ReimbursementPaid, map[string]interface{}{
		"paid_at": now,
		"paid_by": actor.idPtr(),
	}, models.HistoryPaid, strings.TrimSpace(note), events.ReimbursementPaid, actor)
}

func (s *ReimbursementService) transition(
	ctx context.Context,
	id uint,
	from, to domain.ReimbursementStatus,
	changes map[string]interface{},
	action, note string,
	eventType events.EventType,
	actor Actor,
) (*models.Reimbursement, error) {
	rb, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rb.Status != string(from) {
		return nil, domain.InvalidState("reimbursement", rb.Status, string(from))
	}

	changes["status"] = string(to)
	n, err := s.repo.UpdateWhereStatusIn(ctx, id, []string{string(from)}, changes)
	if err != nil {
		return nil, domain.Persistence("update reimbursement", err)
	}
	if n == 0 {
		return nil, s.lostRace(ctx, id, string(from))
	}

	s.appendHistory(ctx, id, actor, string(from), string(to), action, note)
	s.audit.Record(ctx, AuditEntry{
		Actor:    actor,
		Action:   action + "_reimbursement",
		Entity:   "reimbursement",
		EntityID: id,
		Details:  map[string]interface{}{"from": string(from), "to": string(to), "note": note},
	})
	s.log.Info("reimbursement status changed",
		zap.Uint("id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("by", actor.Name),
	)

	rb.Status = string(to)
	if reason, ok := changes["rejection_reason"].(string); ok {
		rb.RejectionReason = reason
	}
	s.publish(eventType, rb, "")
	return s.Get(ctx, id)
}

// lostRace explains a conditional write that touched no row
func (s *ReimbursementService) lostRace(ctx context.Context, id uint, required ...string) error {
	rb, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	return domain.InvalidState("reimbursement", rb.Status, required...)
}

func (s *ReimbursementService) load(ctx context.Context, id uint) (*models.Reimbursement, error) {
	rb, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, domain.NotFound("reimbursement")
	}
	if err != nil {
		return nil, domain.Persistence("get reimbursement", err)
	}
	return rb, nil
}

// ============================================================
// Proofs
// ============================================================

// ProofUpload is one document submitted for a slot
type ProofUpload struct {
	Slot     domain.ProofSlot
	Filename string
	Size     int64
	Content  io.Reader
}

// AttachProof stores documents in their slots, replacing earlier files.
// Allowed in any status.
func (s *ReimbursementService) AttachProof(ctx context.Context, id uint, uploads []ProofUpload, actor Actor) (*models.Reimbursement, error) {
	if len(uploads) == 0 {
		return nil, domain.Invalid("files", "at least one document is required")
	}
	seen := make(map[domain.ProofSlot]bool, len(uploads))
	for _, u := range uploads {
		if err := validateProof(u); err != nil {
			return nil, err
		}
		if seen[u.Slot] {
			return nil, domain.Invalid(string(u.Slot), "one document per slot")
		}
		seen[u.Slot] = true
	}

	rb, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]interface{}, len(uploads))
	var saved, replaced, slots []string
	for _, u := range uploads {
		prefix := fmt.Sprintf("reimbursement-%d-%s", id, u.Slot)
		path, err := s.store.Save(ctx, prefix, u.Filename, u.Content)
		if err != nil {
			s.discard(saved)
			return nil, fmt.Errorf("store %s: %w", u.Slot, err)
		}
		saved = append(saved, path)
		slots = append(slots, string(u.Slot))
		changes[models.ProofColumn(string(u.Slot))] = path
		if old := rb.ProofPath(string(u.Slot)); old != "" {
			replaced = append(replaced, old)
		}
	}

	n, err := s.repo.UpdateWhereStatusIn(ctx, id, allStatuses, changes)
	if err != nil || n == 0 {
		s.discard(saved)
		if err != nil {
			return nil, domain.Persistence("attach proof", err)
		}
		return nil, domain.NotFound("reimbursement")
	}
	s.discard(replaced)

	note := "attached " + strings.Join(slots, ", ")
	s.appendHistory(ctx, id, actor, rb.Status, rb.Status, models.HistoryProofAttached, note)
	s.audit.Record(ctx, AuditEntry{
		Actor:    actor,
		Action:   "attach_reimbursement_proof",
		Entity:   "reimbursement",
		EntityID: id,
		Details:  map[string]interface{}{"slots": slots},
	})
	return s.Get(ctx, id)
}

func validateProof(u ProofUpload) error {
	switch u.Slot {
	case domain.ProofInvoice, domain.ProofReceipt, domain.ProofPaymentProof:
	default:
		return domain.Invalid("slot", "unknown document slot "+strconv.Quote(string(u.Slot)))
	}
	if u.Content == nil {
		return domain.Invalid(string(u.Slot), "file is empty")
	}
	if u.Size > MaxProofSize {
		return domain.Invalid(string(u.Slot), "file exceeds 10MB")
	}
	if !allowedProofExt[strings.ToLower(filepath.Ext(u.Filename))] {
		return domain.Invalid(string(u.Slot), "allowed types are pdf, jpg, jpeg, png and xml")
	}
	return nil
}

// OpenProof returns the stored document of a slot
func (s *ReimbursementService) OpenProof(ctx context.Context, id uint, slot domain.ProofSlot) (io.ReadCloser, string, error) {
	rb, err := s.load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	path := rb.ProofPath(string(slot))
	if path == "" {
		return nil, "", domain.NotFound("document")
	}
	f, err := s.store.Open(path)
	if errors.Is(err, storage.ErrFileNotFound) {
		return nil, "", domain.NotFound("document")
	}
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

func (s *ReimbursementService) discard(paths []string) {
	for _, p := range paths {
		if err := s.store.Remove(p); err != nil {
			s.log.Warn("stored file cleanup failed", zap.String("path", p), zap.Error(err))
		}
	}
}

// ============================================================
// Deletion
// ============================================================

// Delete removes a claim in to_validate or rejected together with its
// history and documents
func (s *ReimbursementService) Delete(ctx context.Context, id uint, actor Actor) error {
	rb, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !domain.ReimbursementStatus(rb.Status).Deletable() {
		return domain.InvalidState("reimbursement", rb.Status,
			string(domain.ReimbursementToValidate), string(domain.ReimbursementRejected))
	}

	deletable := []string{string(domain.ReimbursementToValidate), string(domain.ReimbursementRejected)}
	n, err := s.repo.DeleteWhereStatusIn(ctx, id, deletable)
	if err != nil {
		return domain.Persistence("delete reimbursement", err)
	}
	if n == 0 {
		return s.lostRace(ctx, id, deletable...)
	}

	var files []string
	for _, slot := range domain.ProofSlots {
		if p := rb.ProofPath(string(slot)); p != "" {
			files = append(files, p)
		}
	}
	s.discard(files)

	s.audit.Record(ctx, AuditEntry{
		Actor:    actor,
		Action:   "delete_reimbursement",
		Entity:   "reimbursement",
		EntityID: id,
		Details:  map[string]interface{}{"status": rb.Status, "voucher_id": rb.VoucherID},
	})
	return nil
}

// ============================================================
// Export
// ============================================================

var exportHeader = []string{
	"ID", "Reference month", "Voucher", "Employee", "Employee document",
	"Distributor", "Distributor document", "Amount", "Status",
	"Validated at", "Approved at", "Approved by", "Paid at", "Paid by",
	"Rejected at", "Rejection reason", "Notes",
}

// ExportCSV writes the filtered claims as UTF-8 CSV with a byte order mark
func (s *ReimbursementService) ExportCSV(ctx context.Context, f repositories.ReimbursementFilter, w io.Writer) (int, error) {
	if err := validateFilter(f); err != nil {
		return 0, err
	}
	rows, err := s.repo.ListForExport(ctx, f)
	if err != nil {
		return 0, domain.Persistence("export reimbursements", err)
	}

	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}

	names := map[uint]string{}
	for i := range rows {
		rb := &rows[i]
		record := []string{
			strconv.FormatUint(uint64(rb.ID), 10),
			rb.ReferenceMonth,
			"",
			"",
			"",
			"",
			"",
			rb.Amount.StringFixed(2),
			rb.Status,
			formatTime(rb.ValidatedAt),
			formatTime(rb.ApprovedAt),
			s.adminName(ctx, names, rb.ApprovedBy),
			formatTime(rb.PaidAt),
			s.adminName(ctx, names, rb.PaidBy),
			formatTime(rb.RejectedAt),
			rb.RejectionReason,
			rb.Notes,
		}
		if rb.Voucher != nil {
			record[2] = rb.Voucher.Code
		}
		if rb.Employee != nil {
			record[3] = rb.Employee.Name
			record[4] = rb.Employee.Document
		}
		if rb.Distributor != nil {
			record[5] = rb.Distributor.Name
			record[6] = rb.Distributor.Document
		}
		if err := cw.Write(record); err != nil {
			return i, err
		}
	}
	cw.Flush()
	return len(rows), cw.Error()
}

func (s *ReimbursementService) adminName(ctx context.Context, cache map[uint]string, id *uint) string {
	if id == nil {
		return ""
	}
	if name, ok := cache[*id]; ok {
		return name
	}
	name := strconv.FormatUint(uint64(*id), 10)
	if u, err := s.admins.GetByID(ctx, *id); err == nil {
		name = u.Name
	}
	cache[*id] = name
	return name
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

// ============================================================
// Helpers
// ============================================================

// appendHistory records a change after it was applied. Status changes are
// single conditional updates and no transaction spans them and the history
// insert, so a failed insert leaves the change in place and is only logged
// with enough detail (from, to, actor) to rebuild the row by hand.
func (s *ReimbursementService) appendHistory(ctx context.Context, id uint, actor Actor, from, to, action, note string) {
	h := &models.ReimbursementHistory{
		ReimbursementID: id,
		ActorID:         actor.idPtr(),
		ActorName:       actor.Name,
		PreviousStatus:  from,
		NewStatus:       to,
		Action:          action,
		Note:            note,
		IP:              actor.IP,
	}
	if h.ActorName == "" {
		h.ActorName = ActorSystem
	}
	if err := s.repo.AppendHistory(ctx, h); err != nil {
		s.log.Error("reimbursement history write failed",
			zap.Uint("id", id),
			zap.String("action", action),
			zap.String("from", from),
			zap.String("to", to),
			zap.String("actor", h.ActorName),
			zap.Error(err),
		)
	}
}

func (s *ReimbursementService) publish(t events.EventType, rb *models.Reimbursement, code string) {
	e := events.New(t, s.now())
	e.ReimbursementID = rb.ID
	e.VoucherID = rb.VoucherID
	e.VoucherCode = code
	e.EmployeeID = rb.EmployeeID
	e.DistributorID = rb.DistributorID
	e.ReferenceMonth = rb.ReferenceMonth
	e.Attributes = map[string]string{"status": rb.Status, "amount": rb.Amount.StringFixed(2)}
	if rb.RejectionReason != "" {
		e.Attributes["reason"] = rb.RejectionReason
	}
	s.publisher.Publish(e)
}
