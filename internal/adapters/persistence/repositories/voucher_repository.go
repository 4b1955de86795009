package repositories

import (
	"context"
	"errors"
	"time"

	"consigaz-valegas/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

const (
	statusActive   = "active"
	statusRedeemed = "redeemed"
	statusExpired  = "expired"
)

type voucherRepository struct {
	db *gorm.DB
}

// NewVoucherRepository creates a new voucher repository
func NewVoucherRepository(db *gorm.DB) VoucherRepository {
	return &voucherRepository{db: db}
}

// InsertIfAbsent relies on the unique index on code. A collision is a normal
// outcome for the caller's retry loop, not an error.
func (r *voucherRepository) InsertIfAbsent(ctx context.Context, v *models.Voucher) (bool, error) {
	err := mapError(r.db.WithContext(ctx).Create(v).Error)
	if errors.Is(err, ErrDuplicate) {
		v.ID = 0
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *voucherRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Voucher{}).
		Where("code = ?", code).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

func (r *voucherRepository) GetByID(ctx context.Context, id uint) (*models.Voucher, error) {
	var v models.Voucher
	if err := r.db.WithContext(ctx).First(&v, id).Error; err != nil {
		return nil, mapError(err)
	}
	return &v, nil
}

// GetByCode loads the voucher with its employee and, once redeemed, its distributor
func (r *voucherRepository) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var v models.Voucher
	err := r.db.WithContext(ctx).
		Preload("Employee").
		Preload("Distributor").
		Where("code = ?", code).
		First(&v).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &v, nil
}

// CountForMonth counts vouchers of any status for an employee and month
func (r *voucherRepository) CountForMonth(ctx context.Context, employeeID uint, month string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Voucher{}).
		Where("employee_id = ? AND reference_month = ?", employeeID, month).
		Count(&count).Error
	return count, err
}

// EligibleForMonth lists active employees holding fewer than quota vouchers for month
func (r *voucherRepository) EligibleForMonth(ctx context.Context, month string, quota int) ([]EligibleEmployee, error) {
	var rows []struct {
		ID      uint
		Name    string
		Current int
	}
	err := r.db.WithContext(ctx).
		Table("employees AS e").
		Select("e.id, e.name, COUNT(v.id) AS current").
		Joins("LEFT JOIN vouchers AS v ON v.employee_id = e.id AND v.reference_month = ?", month).
		Where("e.is_active = ?", true).
		Group("e.id, e.name").
		Having("COUNT(v.id) < ?", quota).
		Order("e.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	eligible := make([]EligibleEmployee, 0, len(rows))
	for _, row := range rows {
		eligible = append(eligible, EligibleEmployee{EmployeeID: row.ID, Name: row.Name, Current: row.Current})
	}
	return eligible, nil
}

// MarkRedeemed is the redemption write: one statement, qualified by status.
// Exactly one of two concurrent callers sees a row affected.
func (r *voucherRepository) MarkRedeemed(ctx context.Context, code string, distributorID uint, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Voucher{}).
		Where("code = ? AND status = ?", code, statusActive).
		Updates(map[string]interface{}{
			"status":         statusRedeemed,
			"distributor_id": distributorID,
			"redeemed_at":    at,
		})
	return res.RowsAffected, res.Error
}

func (r *voucherRepository) ExpireIfActive(ctx context.Context, id uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Voucher{}).
		Where("id = ? AND status = ?", id, statusActive).
		Update("status", statusExpired)
	return res.RowsAffected, res.Error
}

func (r *voucherRepository) ExpireOverdue(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Voucher{}).
		Where("status = ? AND expires_at < ?", statusActive, before).
		Update("status", statusExpired)
	return res.RowsAffected, res.Error
}

func (r *voucherRepository) ListActiveExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Voucher, error) {
	var vouchers []models.Voucher
	err := r.db.WithContext(ctx).
		Preload("Employee").
		Where("status = ? AND expires_at >= ? AND expires_at < ?", statusActive, from, to).
		Order("id ASC").
		Find(&vouchers).Error
	return vouchers, err
}

func (r *voucherRepository) List(ctx context.Context, f VoucherFilter, offset, limit int) ([]models.Voucher, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Voucher{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ReferenceMonth != "" {
		q = q.Where("reference_month = ?", f.ReferenceMonth)
	}
	if f.EmployeeID != 0 {
		q = q.Where("employee_id = ?", f.EmployeeID)
	}
	if f.DistributorID != 0 {
		q = q.Where("distributor_id = ?", f.DistributorID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var vouchers []models.Voucher
	err := q.Preload("Employee").
		Preload("Distributor").
		Order("issued_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&vouchers).Error
	return vouchers, total, err
}

func (r *voucherRepository) CountByStatus(ctx context.Context, month string) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	q := r.db.WithContext(ctx).Model(&models.Voucher{}).Select("status, COUNT(*) AS total")
	if month != "" {
		q = q.Where("reference_month = ?", month)
	}
	if err := q.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := map[string]int64{statusActive: 0, statusRedeemed: 0, statusExpired: 0}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *voucherRepository) ListUnclaimed(ctx context.Context, distributorID uint) ([]models.Voucher, error) {
	var vouchers []models.Voucher
	err := r.db.WithContext(ctx).
		Preload("Employee").
		Where("status = ? AND distributor_id = ?", statusRedeemed, distributorID).
		Where("NOT EXISTS (SELECT 1 FROM reimbursements r WHERE r.voucher_id = vouchers.id)").
		Order("redeemed_at DESC").
		Find(&vouchers).Error
	return vouchers, err
}
