package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"consigaz-valegas/internal/adapters/events"
	"consigaz-valegas/internal/adapters/persistence/models"
	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/core/domain"
	"consigaz-valegas/internal/pkg/pagination"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	// issueOneAttempts bounds the pre-check loop of single issuance
	issueOneAttempts = 10
	// batchInsertAttempts bounds insert-and-retry per batch voucher
	batchInsertAttempts = 10
	// employeeLockStripes spreads per-employee issuance locks
	employeeLockStripes = 64
	// employeeMonthLimit bounds the current month listing of one employee
	employeeMonthLimit = 100
)

var errCodeTaken = errors.New("voucher code taken")

// VoucherService issues vouchers and answers voucher queries
type VoucherService struct {
	vouchers  repositories.VoucherRepository
	employees repositories.EmployeeRepository
	rules     Rules
	publisher events.Publisher
	audit     *AuditService
	log       *zap.Logger

	codes       CodeGenerator
	now         Clock
	retryPolicy func() backoff.BackOff

	batchMu    sync.Mutex
	issueLocks [employeeLockStripes]sync.Mutex
}

// NewVoucherService creates a new voucher service
func NewVoucherService(
	vouchers repositories.VoucherRepository,
	employees repositories.EmployeeRepository,
	cfg ConfigProvider,
	publisher events.Publisher,
	audit *AuditService,
	loc *time.Location,
	log *zap.Logger,
) *VoucherService {
	return &VoucherService{
		vouchers:    vouchers,
		employees:   employees,
		rules:       NewRules(cfg),
		publisher:   publisher,
		audit:       audit,
		log:         log.Named("vouchers"),
		codes:       RandomVoucherCode,
		now:         clockIn(loc),
		retryPolicy: defaultInsertBackOff,
	}
}

// defaultInsertBackOff waits 10ms, 20ms, 40ms ... between batch insert attempts
func defaultInsertBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, batchInsertAttempts-1)
}

// ============================================================
// Issuance
// ============================================================

// IssueOne issues a voucher for the current month to an active employee
// below quota.
func (s *VoucherService) IssueOne(ctx context.Context, employeeID uint, actor Actor) (*models.Voucher, error) {
	emp, err := s.employees.GetByID(ctx, employeeID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, domain.NotFound("employee")
	}
	if err != nil {
		return nil, domain.Persistence("get employee", err)
	}
	if !emp.IsActive {
		return nil, &domain.InvalidStateError{
			Entity:   "employee",
			Current:  "inactive",
			Required: []string{"active"},
			Reason:   "employee is inactive",
		}
	}

	now := s.now()
	month := domain.ReferenceMonth(now)
	quota := s.rules.MonthlyQuota(ctx)

	v, err := s.issueWithinQuota(ctx, emp.ID, month, quota, now)
	if err != nil {
		return nil, err
	}
	v.Employee = emp

	s.publishIssued(v)
	s.audit.Record(ctx, AuditEntry{
		Actor:    actor,
		Action:   "issue_voucher",
		Entity:   "voucher",
		EntityID: v.ID,
		Details:  map[string]interface{}{"code": v.Code, "employee_id": emp.ID, "reference_month": month},
	})
	s.log.Info("voucher issued",
		zap.String("code", v.Code),
		zap.Uint("employee_id", emp.ID),
		zap.String("reference_month", month),
	)
	return v, nil
}

func (s *VoucherService) newVoucher(code string, employeeID uint, month string, now time.Time, validity int) *models.Voucher {
	return &models.Voucher{
		Code:           code,
		EmployeeID:     employeeID,
		ReferenceMonth: month,
		Status:         string(domain.VoucherActive),
		IssuedAt:       now,
		ExpiresAt:      now.AddDate(0, 0, validity),
	}
}

// issueWithinQuota counts and inserts under the employee lock
func (s *VoucherService) issueWithinQuota(ctx context.Context, employeeID uint, month string, quota int, now time.Time) (*models.Voucher, error) {
	defer s.lockEmployee(employeeID)()

	current, err := s.vouchers.CountForMonth(ctx, employeeID, month)
	if err != nil {
		return nil, domain.Persistence("count vouchers", err)
	}
	if current >= int64(quota) {
		return nil, &domain.QuotaExceededError{Current: int(current), Quota: quota}
	}
	return s.issueWithPrecheck(ctx, employeeID, month, now)
}

// issueWithPrecheck skips codes already seen and still treats the insert as
// the authority: a concurrent insert of the same code just costs an attempt.
func (s *VoucherService) issueWithPrecheck(ctx context.Context, employeeID uint, month string, now time.Time) (*models.Voucher, error) {
	validity := s.rules.ValidityDays(ctx)

	for attempt := 1; attempt <= issueOneAttempts; attempt++ {
		code, err := s.codes()
		if err != nil {
			return nil, fmt.Errorf("generate voucher code: %w", err)
		}

		exists, err := s.vouchers.ExistsByCode(ctx, code)
		if err != nil {
			return nil, domain.Persistence("check voucher code", err)
		}
		if exists {
			continue
		}

		v := s.newVoucher(code, employeeID, month, now, validity)
		inserted, err := s.vouchers.InsertIfAbsent(ctx, v)
		if err != nil {
			return nil, domain.Persistence("insert voucher", err)
		}
		if inserted {
			return v, nil
		}
	}

	s.log.Error("voucher code generation exhausted", zap.Uint("employee_id", employeeID), zap.Int("attempts", issueOneAttempts))
	return nil, fmt.Errorf("%w after %d attempts", domain.ErrCodeGenerationExhausted, issueOneAttempts)
}

// issueWithBackoff inserts directly and retries collisions with exponential backoff
func (s *VoucherService) issueWithBackoff(ctx context.Context, employeeID uint, month string, now time.Time, validity int) (*models.Voucher, error) {
	var v *models.Voucher

	op := func() error {
		code, err := s.codes()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("generate voucher code: %w", err))
		}
		candidate := s.newVoucher(code, employeeID, month, now, validity)
		inserted, err := s.vouchers.InsertIfAbsent(ctx, candidate)
		if err != nil {
			return backoff.Permanent(domain.Persistence("insert voucher", err))
		}
		if !inserted {
			return errCodeTaken
		}
		v = candidate
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(s.retryPolicy(), ctx))
	if errors.Is(err, errCodeTaken) {
		return nil, fmt.Errorf("%w after %d attempts", domain.ErrCodeGenerationExhausted, batchInsertAttempts)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// BatchFailure is one employee the batch could not fully serve
type BatchFailure struct {
	EmployeeID uint   `json:"employee_id"`
	Name       string `json:"name"`
	Error      string `json:"error"`
}

// BatchResult summarizes a monthly batch
type BatchResult struct {
	ReferenceMonth string         `json:"reference_month"`
	Quota          int            `json:"quota"`
	Eligible       int            `json:"eligible"`
	Issued         int            `json:"issued"`
	Failed         int            `json:"failed"`
	Failures       []BatchFailure `json:"failures,omitempty"`
	Duration       string         `json:"duration"`
}

// IssueMonthlyBatch tops every eligible employee up to quota for month
// (current month when empty). Failures are isolated per employee. Only one
// batch runs per process at a time.
func (s *VoucherService) IssueMonthlyBatch(ctx context.Context, month string, actor Actor) (*BatchResult, error) {
	now := s.now()
	month = strings.TrimSpace(month)
	if month == "" {
		month = domain.ReferenceMonth(now)
	}
	if !domain.ValidReferenceMonth(month) {
		return nil, domain.Invalid("reference_month", "must be YYYY-MM")
	}

	if !s.batchMu.TryLock() {
		return nil, domain.Conflict("monthly batch already running")
	}
	defer s.batchMu.Unlock()

	start := time.Now()
	quota := s.rules.MonthlyQuota(ctx)
	validity := s.rules.ValidityDays(ctx)

	eligible, err := s.vouchers.EligibleForMonth(ctx, month, quota)
	if err != nil {
		return nil, domain.Persistence("list eligible employees", err)
	}

	s.log.Info("🎟️ Monthly batch started",
		zap.String("reference_month", month),
		zap.Int("eligible", len(eligible)),
		zap.Int("quota", quota),
	)

	result := &BatchResult{ReferenceMonth: month, Quota: quota, Eligible: len(eligible)}

	for _, e := range eligible {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		s.topUp(ctx, e, month, quota, validity, now, result)
	}

	result.Duration = time.Since(start).Round(time.Millisecond).String()

	s.audit.Record(ctx, AuditEntry{
		Actor:  actor,
		Action: "generate_monthly_vouchers",
		Entity: "voucher",
		Details: map[string]interface{}{
			"reference_month": month,
			"eligible":        result.Eligible,
			"issued":          result.Issued,
			"failed":          result.Failed,
		},
	})
	s.log.Info("✅ Monthly batch finished",
		zap.String("reference_month", month),
		zap.Int("issued", result.Issued),
		zap.Int("failed", result.Failed),
		zap.String("duration", result.Duration),
	)
	return result, nil
}

// topUp issues the vouchers one employee is still owed. The recount runs under
// the employee lock since IssueOne may have issued since the eligibility query.
func (s *VoucherService) topUp(ctx context.Context, e repositories.EligibleEmployee, month string, quota, validity int, now time.Time, result *BatchResult) {
	defer s.lockEmployee(e.EmployeeID)()

	current, err := s.vouchers.CountForMonth(ctx, e.EmployeeID, month)
	if err != nil {
		result.addFailure(e, domain.Persistence("count vouchers", err))
		return
	}

	for n := int(current); n < quota; n++ {
		v, err := s.issueWithBackoff(ctx, e.EmployeeID, month, now, validity)
		if err != nil {
			result.addFailure(e, err)
			s.log.Warn("batch issuance failed for employee",
				zap.Uint("employee_id", e.EmployeeID),
				zap.Error(err),
			)
			return
		}
		result.Issued++
		s.publishIssued(v)
	}
}

// lockEmployee serializes count-then-insert for one employee inside this
// process. Other processes are only held back by the recount.
func (s *VoucherService) lockEmployee(id uint) func() {
	m := &s.issueLocks[id%employeeLockStripes]
	m.Lock()
	return m.Unlock
}

func (r *BatchResult) addFailure(e repositories.EligibleEmployee, err error) {
	r.Failed++
	r.Failures = append(r.Failures, BatchFailure{EmployeeID: e.EmployeeID, Name: e.Name, Error: err.Error()})
}

func (s *VoucherService) publishIssued(v *models.Voucher) {
	e := events.New(events.VoucherIssued, v.IssuedAt)
	e.VoucherID = v.ID
	e.VoucherCode = v.Code
	e.EmployeeID = v.EmployeeID
	e.ReferenceMonth = v.ReferenceMonth
	expires := v.ExpiresAt
	e.ExpiresAt = &expires
	s.publisher.Publish(e)
}

// ============================================================
// Queries
// ============================================================

// VoucherPage is one page of vouchers
type VoucherPage struct {
	Vouchers []models.Voucher `json:"vouchers"`
	Meta     pagination.Meta  `json:"pagination"`
}

// List returns vouchers newest first
func (s *VoucherService) List(ctx context.Context, f repositories.VoucherFilter, p pagination.Params) (*VoucherPage, error) {
	if f.ReferenceMonth != "" && !domain.ValidReferenceMonth(f.ReferenceMonth) {
		return nil, domain.Invalid("reference_month", "must be YYYY-MM")
	}
	rows, total, err := s.vouchers.List(ctx, f, p.Offset, p.Limit)
	if err != nil {
		return nil, domain.Persistence("list vouchers", err)
	}
	return &VoucherPage{Vouchers: rows, Meta: pagination.MetaFor(p, total)}, nil
}

// ListForEmployee returns an employee's vouchers
func (s *VoucherService) ListForEmployee(ctx context.Context, employeeID uint, p pagination.Params) (*VoucherPage, error) {
	if _, err := s.employees.GetByID(ctx, employeeID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, domain.NotFound("employee")
		}
		return nil, domain.Persistence("get employee", err)
	}
	return s.List(ctx, repositories.VoucherFilter{EmployeeID: employeeID}, p)
}

// OwnedVoucher is a voucher as its employee sees it
type OwnedVoucher struct {
	models.Voucher
	DaysLeft int `json:"days_left"`
}

// EmployeeMonth is an employee's view of the current reference month
type EmployeeMonth struct {
	ReferenceMonth string         `json:"reference_month"`
	Quota          int            `json:"quota"`
	Available      int            `json:"available"`
	Vouchers       []OwnedVoucher `json:"vouchers"`
}

// CurrentForEmployee returns the employee's vouchers of the current reference
// month. Available counts the ones still redeemable today.
func (s *VoucherService) CurrentForEmployee(ctx context.Context, employeeID uint) (*EmployeeMonth, error) {
	now := s.now()
	month := domain.ReferenceMonth(now)

	rows, _, err := s.vouchers.List(ctx, repositories.VoucherFilter{EmployeeID: employeeID, ReferenceMonth: month}, 0, employeeMonthLimit)
	if err != nil {
		return nil, domain.Persistence("list vouchers", err)
	}

	view := &EmployeeMonth{
		ReferenceMonth: month,
		Quota:          s.rules.MonthlyQuota(ctx),
		Vouchers:       make([]OwnedVoucher, 0, len(rows)),
	}
	for _, v := range rows {
		owned := OwnedVoucher{Voucher: v, DaysLeft: domain.DaysLeft(v.ExpiresAt, now)}
		if v.Status == string(domain.VoucherActive) && !domain.PastExpiry(v.ExpiresAt, now) {
			view.Available++
		}
		view.Vouchers = append(view.Vouchers, owned)
	}
	return view, nil
}

// HistoryForEmployee pages through every voucher the employee ever received
func (s *VoucherService) HistoryForEmployee(ctx context.Context, employeeID uint, p pagination.Params) (*VoucherPage, error) {
	return s.List(ctx, repositories.VoucherFilter{EmployeeID: employeeID}, p)
}

// VoucherStats counts vouchers per status for a month (all months when empty)
type VoucherStats struct {
	ReferenceMonth string `json:"reference_month,omitempty"`
	Active         int64  `json:"active"`
	Redeemed       int64  `json:"redeemed"`
	Expired        int64  `json:"expired"`
	Total          int64  `json:"total"`
}

// Stats counts vouchers per status
func (s *VoucherService) Stats(ctx context.Context, month string) (*VoucherStats, error) {
	if month != "" && !domain.ValidReferenceMonth(month) {
		return nil, domain.Invalid("reference_month", "must be YYYY-MM")
	}
	counts, err := s.vouchers.CountByStatus(ctx, month)
	if err != nil {
		return nil, domain.Persistence("count vouchers", err)
	}
	st := &VoucherStats{
		ReferenceMonth: month,
		Active:         counts[string(domain.VoucherActive)],
		Redeemed:       counts[string(domain.VoucherRedeemed)],
		Expired:        counts[string(domain.VoucherExpired)],
	}
	st.Total = st.Active + st.Redeemed + st.Expired
	return st, nil
}

// ============================================================
// Expiry
// ============================================================

// ExpireOverdue marks active vouchers expired once their expiry date has
// passed. A voucher stays valid through its expiry date.
func (s *VoucherService) ExpireOverdue(ctx context.Context) (int64, error) {
	cutoff := domain.StartOfDay(s.now())
	n, err := s.vouchers.ExpireOverdue(ctx, cutoff)
	if err != nil {
		return 0, domain.Persistence("expire vouchers", err)
	}
	if n > 0 {
		s.log.Info("⏰ Vouchers expired", zap.Int64("count", n))
	}
	return n, nil
}

// SendExpiryReminders publishes voucher.expiring for active vouchers expiring
// exactly offset days from today, for each configured offset.
func (s *VoucherService) SendExpiryReminders(ctx context.Context) (int, error) {
	today := domain.StartOfDay(s.now())
	sent := 0

	for _, offset := range s.rules.ReminderOffsets(ctx) {
		from := today.AddDate(0, 0, offset)
		to := from.AddDate(0, 0, 1)

		vouchers, err := s.vouchers.ListActiveExpiringBetween(ctx, from, to)
		if err != nil {
			return sent, domain.Persistence("list expiring vouchers", err)
		}

		for i := range vouchers {
			v := &vouchers[i]
			e := events.New(events.VoucherExpiring, s.now())
			e.VoucherID = v.ID
			e.VoucherCode = v.Code
			e.EmployeeID = v.EmployeeID
			e.ReferenceMonth = v.ReferenceMonth
			expires := v.ExpiresAt
			e.ExpiresAt = &expires
			e.DaysLeft = offset
			s.publisher.Publish(e)
			sent++
		}
	}

	if sent > 0 {
		s.log.Info("🔔 Expiry reminders published", zap.Int("count", sent))
	}
	return sent, nil
}
