package services

import (
	"context"
	"errors"
	"time"

	"consigaz-valegas/internal/adapters/events"
	"consigaz-valegas/internal/adapters/persistence/models"
	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/core/domain"
	"consigaz-valegas/internal/pkg/pagination"

	"go.uber.org/zap"
)

// Reasons a code is not redeemable
const (
	ReasonNotFound        = "not_found"
	ReasonAlreadyRedeemed = "already_redeemed"
	ReasonExpired         = "expired"
	ReasonWrongMonth      = "wrong_month"
	ReasonUnavailable     = "unavailable"
)

// VoucherView is what a distributor sees of a voucher
type VoucherView struct {
	ID             uint       `json:"id"`
	Code           string     `json:"code"`
	Status         string     `json:"status"`
	ReferenceMonth string     `json:"reference_month"`
	ExpiresAt      time.Time  `json:"expires_at"`
	RedeemedAt     *time.Time `json:"redeemed_at,omitempty"`
	EmployeeName   string     `json:"employee_name,omitempty"`
	EmployeeDoc    string     `json:"employee_document,omitempty"`
}

// RedeemerInfo says who redeemed a voucher already
type RedeemerInfo struct {
	DistributorID   uint       `json:"distributor_id"`
	DistributorName string     `json:"distributor_name"`
	RedeemedAt      *time.Time `json:"redeemed_at,omitempty"`
}

// RedemptionResult is the outcome of inspecting or redeeming a code. A code
// that cannot be redeemed is a result with Valid false, not an error.
type RedemptionResult struct {
	Valid           bool          `json:"valid"`
	Reason          string        `json:"reason,omitempty"`
	Message         string        `json:"message"`
	Voucher         *VoucherView  `json:"voucher,omitempty"`
	RedeemedBy      *RedeemerInfo `json:"redeemed_by,omitempty"`
	ReimbursementID *uint         `json:"reimbursement_id,omitempty"`
}

// RedemptionService checks and redeems voucher codes at distributors
type RedemptionService struct {
	vouchers       repositories.VoucherRepository
	history        repositories.RedemptionHistoryRepository
	distributors   repositories.DistributorRepository
	reimbursements *ReimbursementService
	rules          Rules
	publisher      events.Publisher
	log            *zap.Logger
	now            Clock
}

// NewRedemptionService creates a new redemption service
func NewRedemptionService(
	vouchers repositories.VoucherRepository,
	history repositories.RedemptionHistoryRepository,
	distributors repositories.DistributorRepository,
	reimbursements *ReimbursementService,
	cfg ConfigProvider,
	publisher events.Publisher,
	loc *time.Location,
	log *zap.Logger,
) *RedemptionService {
	return &RedemptionService{
		vouchers:       vouchers,
		history:        history,
		distributors:   distributors,
		reimbursements: reimbursements,
		rules:          NewRules(cfg),
		publisher:      publisher,
		log:            log.Named("redemption"),
		now:            clockIn(loc),
	}
}

// Inspect reports whether code is redeemable right now without redeeming it.
// An active voucher found past its expiry date is expired on the way.
func (s *RedemptionService) Inspect(ctx context.Context, code string) (*RedemptionResult, error) {
	code = NormalizeVoucherCode(code)
	if code == "" {
		return nil, domain.Invalid("code", "voucher code is required")
	}
	_, res, err := s.check(ctx, code, s.now())
	return res, err
}

// Redeem consumes code at distributorID. Of two concurrent redemptions of
// the same code exactly one succeeds.
func (s *RedemptionService) Redeem(ctx context.Context, code string, distributorID uint) (*RedemptionResult, error) {
	code = NormalizeVoucherCode(code)
	if code == "" {
		return nil, domain.Invalid("code", "voucher code is required")
	}

	dist, err := s.distributors.GetByID(ctx, distributorID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, domain.NotFound("distributor")
	}
	if err != nil {
		return nil, domain.Persistence("get distributor", err)
	}
	if !dist.IsActive {
		return nil, &domain.InvalidStateError{
			Entity:   "distributor",
			Current:  "inactive",
			Required: []string{"active"},
			Reason:   "distributor is inactive",
		}
	}

	now := s.now()
	v, res, err := s.check(ctx, code, now)
	if err != nil || !res.Valid {
		return res, err
	}

	n, err := s.vouchers.MarkRedeemed(ctx, code, dist.ID, now)
	if err != nil {
		return nil, domain.Persistence("redeem voucher", err)
	}
	if n == 0 {
		return &RedemptionResult{
			Reason:  ReasonUnavailable,
			Message: "voucher not found or not available for redemption",
		}, nil
	}

	v.Status = string(domain.VoucherRedeemed)
	v.DistributorID = &dist.ID
	v.RedeemedAt = &now

	s.writeHistory(ctx, v, dist, now)
	s.publishRedeemed(v, dist)

	res = &RedemptionResult{
		Valid:   true,
		Message: "voucher redeemed",
		Voucher: viewOf(v),
	}

	if domain.DistributorKind(dist.Kind).Reimbursable() && s.rules.AutoReimbursement(ctx) {
		rb, err := s.reimbursements.CreateFromRedemption(ctx, v, dist, now)
		if err != nil {
			// the voucher stays redeemed; the claim can be created by hand
			s.log.Error("automatic reimbursement failed",
				zap.String("code", v.Code),
				zap.Uint("distributor_id", dist.ID),
				zap.Error(err),
			)
		} else {
			res.ReimbursementID = &rb.ID
		}
	}

	s.log.Info("voucher redeemed",
		zap.String("code", v.Code),
		zap.Uint("distributor_id", dist.ID),
		zap.String("kind", dist.Kind),
	)
	return res, nil
}

// check runs the ordered validation: not found, already redeemed, expired,
// wrong month, past expiry date.
func (s *RedemptionService) check(ctx context.Context, code string, now time.Time) (*models.Voucher, *RedemptionResult, error) {
	v, err := s.vouchers.GetByCode(ctx, code)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, &RedemptionResult{Reason: ReasonNotFound, Message: "voucher not found"}, nil
	}
	if err != nil {
		return nil, nil, domain.Persistence("get voucher", err)
	}

	switch domain.VoucherStatus(v.Status) {
	case domain.VoucherRedeemed:
		res := &RedemptionResult{
			Reason:  ReasonAlreadyRedeemed,
			Message: "voucher already redeemed",
			Voucher: viewOf(v),
		}
		if v.DistributorID != nil {
			res.RedeemedBy = &RedeemerInfo{DistributorID: *v.DistributorID, RedeemedAt: v.RedeemedAt}
			if v.Distributor != nil {
				res.RedeemedBy.DistributorName = v.Distributor.Name
			}
		}
		return v, res, nil
	case domain.VoucherExpired:
		return v, &RedemptionResult{Reason: ReasonExpired, Message: "voucher expired", Voucher: viewOf(v)}, nil
	}

	if v.ReferenceMonth != domain.ReferenceMonth(now) {
		return v, &RedemptionResult{
			Reason:  ReasonWrongMonth,
			Message: "voucher does not belong to the current month",
			Voucher: viewOf(v),
		}, nil
	}

	if domain.PastExpiry(v.ExpiresAt, now) {
		if _, err := s.vouchers.ExpireIfActive(ctx, v.ID); err != nil {
			s.log.Warn("lazy expiry failed", zap.String("code", v.Code), zap.Error(err))
		} else {
			v.Status = string(domain.VoucherExpired)
		}
		return v, &RedemptionResult{Reason: ReasonExpired, Message: "voucher expired", Voucher: viewOf(v)}, nil
	}

	return v, &RedemptionResult{Valid: true, Message: "voucher valid", Voucher: viewOf(v)}, nil
}

func (s *RedemptionService) writeHistory(ctx context.Context, v *models.Voucher, d *models.Distributor, at time.Time) {
	h := &models.RedemptionHistory{
		VoucherID:       v.ID,
		EmployeeID:      v.EmployeeID,
		DistributorID:   d.ID,
		Code:            v.Code,
		ReferenceMonth:  v.ReferenceMonth,
		RedeemedAt:      at,
		DistributorName: d.Name,
	}
	if v.Employee != nil {
		h.EmployeeName = v.Employee.Name
		h.EmployeeDocument = v.Employee.Document
	}
	if err := s.history.Create(ctx, h); err != nil {
		s.log.Error("redemption history write failed", zap.String("code", v.Code), zap.Error(err))
	}
}

func (s *RedemptionService) publishRedeemed(v *models.Voucher, d *models.Distributor) {
	e := events.New(events.VoucherRedeemed, *v.RedeemedAt)
	e.VoucherID = v.ID
	e.VoucherCode = v.Code
	e.EmployeeID = v.EmployeeID
	e.DistributorID = d.ID
	e.ReferenceMonth = v.ReferenceMonth
	e.Attributes = map[string]string{"distributor_name": d.Name, "distributor_kind": d.Kind}
	s.publisher.Publish(e)
}

func viewOf(v *models.Voucher) *VoucherView {
	view := &VoucherView{
		ID:             v.ID,
		Code:           v.Code,
		Status:         v.Status,
		ReferenceMonth: v.ReferenceMonth,
		ExpiresAt:      v.ExpiresAt,
		RedeemedAt:     v.RedeemedAt,
	}
	if v.Employee != nil {
		view.EmployeeName = v.Employee.Name
		view.EmployeeDoc = v.Employee.Document
	}
	return view
}

// ============================================================
// Distributor panel
// ============================================================

// RedemptionPage is one page of a distributor's redemption history
type RedemptionPage struct {
	Redemptions []models.RedemptionHistory `json:"redemptions"`
	Meta        pagination.Meta            `json:"pagination"`
}

// History lists redemptions made at a distributor, optionally for one month
func (s *RedemptionService) History(ctx context.Context, distributorID uint, month string, p pagination.Params) (*RedemptionPage, error) {
	if month != "" && !domain.ValidReferenceMonth(month) {
		return nil, domain.Invalid("reference_month", "must be YYYY-MM")
	}
	rows, total, err := s.history.ListByDistributor(ctx, distributorID, month, p.Offset, p.Limit)
	if err != nil {
		return nil, domain.Persistence("list redemptions", err)
	}
	return &RedemptionPage{Redemptions: rows, Meta: pagination.MetaFor(p, total)}, nil
}

// dashboardRecent and dashboardMonths size the distributor dashboard
const (
	dashboardRecent = 5
	dashboardMonths = 6
)

// DistributorDashboard summarises a distributor's redemptions
type DistributorDashboard struct {
	Today     int64                      `json:"today"`
	ThisMonth int64                      `json:"this_month"`
	Recent    []models.RedemptionHistory `json:"recent"`
	Monthly   []repositories.MonthCount  `json:"monthly"`
}

// Dashboard counts today's and this calendar month's redemptions, lists the
// latest ones and groups the last six reference months.
func (s *RedemptionService) Dashboard(ctx context.Context, distributorID uint) (*DistributorDashboard, error) {
	today := domain.StartOfDay(s.now())
	monthStart := today.AddDate(0, 0, 1-today.Day())

	d := &DistributorDashboard{}
	var err error
	if d.Today, err = s.history.CountSince(ctx, distributorID, today); err != nil {
		return nil, domain.Persistence("count redemptions", err)
	}
	if d.ThisMonth, err = s.history.CountSince(ctx, distributorID, monthStart); err != nil {
		return nil, domain.Persistence("count redemptions", err)
	}
	if d.Recent, _, err = s.history.ListByDistributor(ctx, distributorID, "", 0, dashboardRecent); err != nil {
		return nil, domain.Persistence("list redemptions", err)
	}
	from := domain.ReferenceMonth(monthStart.AddDate(0, 1-dashboardMonths, 0))
	if d.Monthly, err = s.history.CountByMonth(ctx, distributorID, from); err != nil {
		return nil, domain.Persistence("group redemptions", err)
	}
	return d, nil
}
