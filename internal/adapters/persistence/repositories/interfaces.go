package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"consigaz-valegas/internal/adapters/persistence/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned by Get* methods when no row matches
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique index rejects an insert
	ErrDuplicate = errors.New("duplicate key")
)

// AdminUserRepository reads admin panel accounts
type AdminUserRepository interface {
	Create(ctx context.Context, user *models.AdminUser) error
	GetByID(ctx context.Context, id uint) (*models.AdminUser, error)
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
}

// EmployeeFilter narrows employee listings
type EmployeeFilter struct {
	Search string
	Active *bool
}

// EmployeeRepository stores employees
type EmployeeRepository interface {
	Create(ctx context.Context, e *models.Employee) error
	GetByID(ctx context.Context, id uint) (*models.Employee, error)
	// GetByLogin matches the CPF digits or the email
	GetByLogin(ctx context.Context, login string) (*models.Employee, error)
	List(ctx context.Context, f EmployeeFilter, offset, limit int) ([]models.Employee, int64, error)
	Update(ctx context.Context, id uint, changes map[string]interface{}) (int64, error)
	Deactivate(ctx context.Context, id uint) (int64, error)
}

// DistributorFilter narrows distributor listings
type DistributorFilter struct {
	Search string
	Kind   string
	Active *bool
}

// DistributorRepository stores distributors
type DistributorRepository interface {
	Create(ctx context.Context, d *models.Distributor) error
	GetByID(ctx context.Context, id uint) (*models.Distributor, error)
	GetByEmail(ctx context.Context, email string) (*models.Distributor, error)
	List(ctx context.Context, f DistributorFilter, offset, limit int) ([]models.Distributor, int64, error)
	Update(ctx context.Context, id uint, changes map[string]interface{}) (int64, error)
	Deactivate(ctx context.Context, id uint) (int64, error)
}

// EligibleEmployee is an active employee below quota for a month
type EligibleEmployee struct {
	EmployeeID uint
	Name       string
	Current    int
}

// VoucherFilter narrows voucher listings
type VoucherFilter struct {
	Status         string
	ReferenceMonth string
	EmployeeID     uint
	DistributorID  uint
}

// VoucherRepository is the storage contract for vouchers.
//
// Status changes are conditional single-statement updates qualified by
// status = 'active'. The returned row count is the only concurrency signal:
// 0 means another writer got there first (or the voucher is gone).
type VoucherRepository interface {
	// InsertIfAbsent inserts v and reports false, nil when the code is taken
	InsertIfAbsent(ctx context.Context, v *models.Voucher) (bool, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	GetByID(ctx context.Context, id uint) (*models.Voucher, error)
	GetByCode(ctx context.Context, code string) (*models.Voucher, error)
	CountForMonth(ctx context.Context, employeeID uint, month string) (int64, error)
	EligibleForMonth(ctx context.Context, month string, quota int) ([]EligibleEmployee, error)
	MarkRedeemed(ctx context.Context, code string, distributorID uint, at time.Time) (int64, error)
	ExpireIfActive(ctx context.Context, id uint) (int64, error)
	// ExpireOverdue expires active vouchers whose expiry is before the given instant
	ExpireOverdue(ctx context.Context, before time.Time) (int64, error)
	ListActiveExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Voucher, error)
	List(ctx context.Context, f VoucherFilter, offset, limit int) ([]models.Voucher, int64, error)
	CountByStatus(ctx context.Context, month string) (map[string]int64, error)
	// ListUnclaimed returns redeemed vouchers of a distributor without a reimbursement
	ListUnclaimed(ctx context.Context, distributorID uint) ([]models.Voucher, error)
}

// MonthCount is the number of redemptions in one reference month
type MonthCount struct {
	ReferenceMonth string `json:"reference_month"`
	Total          int64  `json:"total"`
}

// RedemptionHistoryRepository is append-only
type RedemptionHistoryRepository interface {
	Create(ctx context.Context, h *models.RedemptionHistory) error
	GetByVoucherID(ctx context.Context, voucherID uint) (*models.RedemptionHistory, error)
	ListByDistributor(ctx context.Context, distributorID uint, month string, offset, limit int) ([]models.RedemptionHistory, int64, error)
	CountSince(ctx context.Context, distributorID uint, since time.Time) (int64, error)
	// CountByMonth groups a distributor's redemptions from fromMonth on, oldest first
	CountByMonth(ctx context.Context, distributorID uint, fromMonth string) ([]MonthCount, error)
}

// ReimbursementFilter narrows reimbursement listings. From/To bound the
// validation (redemption) time.
type ReimbursementFilter struct {
	Status         string
	DistributorID  uint
	ReferenceMonth string
	From           *time.Time
	To             *time.Time
}

// ReimbursementStats aggregates counts and sums per status
type ReimbursementStats struct {
	Total            int64           `json:"total"`
	ToValidate       int64           `json:"to_validate"`
	Approved         int64           `json:"approved"`
	Paid             int64           `json:"paid"`
	Rejected         int64           `json:"rejected"`
	AmountToValidate decimal.Decimal `json:"amount_to_validate"`
	AmountApproved   decimal.Decimal `json:"amount_approved"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
}

// ReimbursementRepository is the storage contract for reimbursements.
// Every mutation is qualified by the statuses it is allowed from.
type ReimbursementRepository interface {
	Create(ctx context.Context, r *models.Reimbursement) error
	GetByID(ctx context.Context, id uint) (*models.Reimbursement, error)
	GetDetailed(ctx context.Context, id uint) (*models.Reimbursement, error)
	ExistsForVoucher(ctx context.Context, voucherID uint) (bool, error)
	List(ctx context.Context, f ReimbursementFilter, offset, limit int) ([]models.Reimbursement, int64, error)
	ListForExport(ctx context.Context, f ReimbursementFilter) ([]models.Reimbursement, error)
	Stats(ctx context.Context) (*ReimbursementStats, error)
	UpdateWhereStatusIn(ctx context.Context, id uint, statuses []string, changes map[string]interface{}) (int64, error)
	// DeleteWhereStatusIn removes the row and its history when the status allows it
	DeleteWhereStatusIn(ctx context.Context, id uint, statuses []string) (int64, error)
	AppendHistory(ctx context.Context, h *models.ReimbursementHistory) error
	ListHistory(ctx context.Context, reimbursementID uint) ([]models.ReimbursementHistory, error)
}

// SettingRepository stores business settings
type SettingRepository interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
	List(ctx context.Context) ([]models.Setting, error)
	UpdateValue(ctx context.Context, key, value string) (int64, error)
}

// AuditFilter narrows audit log listings
type AuditFilter struct {
	Action    string
	Entity    string
	ActorType string
}

// AuditLogRepository is append-only
type AuditLogRepository interface {
	Create(ctx context.Context, l *models.AuditLog) error
	List(ctx context.Context, f AuditFilter, offset, limit int) ([]models.AuditLog, int64, error)
}

// WebhookTypeStats summarizes deliveries of one notification type
type WebhookTypeStats struct {
	Type      string `json:"type"`
	Total     int64  `json:"total"`
	Successes int64  `json:"successes"`
	Failures  int64  `json:"failures"`
}

// WebhookLogRepository records outbound notification attempts
type WebhookLogRepository interface {
	Create(ctx context.Context, l *models.WebhookLog) error
	StatsSince(ctx context.Context, since time.Time) ([]WebhookTypeStats, error)
	Latest(ctx context.Context, limit int) ([]models.WebhookLog, error)
}

// mapError converts driver errors into package sentinels
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicate(err):
		return ErrDuplicate
	}
	return err
}

// isDuplicate detects unique violations. gorm translates them when
// TranslateError is on; the string checks cover connections opened without it.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}

// likePattern wraps a search term for LIKE
func likePattern(s string) string {
	return "%" + strings.TrimSpace(s) + "%"
}
