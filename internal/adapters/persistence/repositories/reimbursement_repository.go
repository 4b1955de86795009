package repositories

import (
	"context"

	"consigaz-valegas/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

type reimbursementRepository struct {
	db *gorm.DB
}

// NewReimbursementRepository creates a new reimbursement repository
func NewReimbursementRepository(db *gorm.DB) ReimbursementRepository {
	return &reimbursementRepository{db: db}
}

// Create inserts r. A second claim for the same voucher fails with ErrDuplicate.
func (r *reimbursementRepository) Create(ctx context.Context, rb *models.Reimbursement) error {
	return mapError(r.db.WithContext(ctx).Omit("Voucher", "Distributor", "Employee", "History").Create(rb).Error)
}

func (r *reimbursementRepository) GetByID(ctx context.Context, id uint) (*models.Reimbursement, error) {
	var rb models.Reimbursement
	if err := r.db.WithContext(ctx).First(&rb, id).Error; err != nil {
		return nil, mapError(err)
	}
	return &rb, nil
}

// GetDetailed loads relations and the history timeline oldest first
func (r *reimbursementRepository) GetDetailed(ctx context.Context, id uint) (*models.Reimbursement, error) {
	var rb models.Reimbursement
	err := r.db.WithContext(ctx).
		Preload("Voucher").
		Preload("Distributor").
		Preload("Employee").
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&rb, id).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &rb, nil
}

func (r *reimbursementRepository) ExistsForVoucher(ctx context.Context, voucherID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Reimbursement{}).
		Where("voucher_id = ?", voucherID).
		Count(&count).Error
	return count > 0, err
}

func (r *reimbursementRepository) filtered(ctx context.Context, f ReimbursementFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Reimbursement{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.DistributorID != 0 {
		q = q.Where("distributor_id = ?", f.DistributorID)
	}
	if f.ReferenceMonth != "" {
		q = q.Where("reference_month = ?", f.ReferenceMonth)
	}
	if f.From != nil {
		q = q.Where("validated_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("validated_at <= ?", *f.To)
	}
	return q
}

func (r *reimbursementRepository) List(ctx context.Context, f ReimbursementFilter, offset, limit int) ([]models.Reimbursement, int64, error) {
	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Reimbursement
	err := r.filtered(ctx, f).
		Preload("Voucher").
		Preload("Distributor").
		Preload("Employee").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, total, err
}

func (r *reimbursementRepository) ListForExport(ctx context.Context, f ReimbursementFilter) ([]models.Reimbursement, error) {
	var rows []models.Reimbursement
	err := r.filtered(ctx, f).
		Preload("Voucher").
		Preload("Distributor").
		Preload("Employee").
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

// Stats aggregates over the whole table, independent of list filters
func (r *reimbursementRepository) Stats(ctx context.Context) (*ReimbursementStats, error) {
	var stats ReimbursementStats
	err := r.db.WithContext(ctx).Model(&models.Reimbursement{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'to_validate' THEN 1 ELSE 0 END), 0) AS to_validate,
			COALESCE(SUM(CASE WHEN status = 'approved' THEN 1 ELSE 0 END), 0) AS approved,
			COALESCE(SUM(CASE WHEN status = 'paid' THEN 1 ELSE 0 END), 0) AS paid,
			COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0) AS rejected,
			COALESCE(SUM(CASE WHEN status = 'to_validate' THEN amount ELSE 0 END), 0) AS amount_to_validate,
			COALESCE(SUM(CASE WHEN status = 'approved' THEN amount ELSE 0 END), 0) AS amount_approved,
			COALESCE(SUM(CASE WHEN status = 'paid' THEN amount ELSE 0 END), 0) AS amount_paid`).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// UpdateWhereStatusIn applies changes only while the row is in one of statuses
func (r *reimbursementRepository) UpdateWhereStatusIn(ctx context.Context, id uint, statuses []string, changes map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Reimbursement{}).
		Where("id = ? AND status IN ?", id, statuses).
		Updates(changes)
	return res.RowsAffected, res.Error
}

func (r *reimbursementRepository) DeleteWhereStatusIn(ctx context.Context, id uint, statuses []string) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("reimbursement_id = ? AND EXISTS (SELECT 1 FROM reimbursements r WHERE r.id = ? AND r.status IN ?)", id, id, statuses).
			Delete(&models.ReimbursementHistory{})
		if res.Error != nil {
			return res.Error
		}

		res = tx.Where("id = ? AND status IN ?", id, statuses).Delete(&models.Reimbursement{})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	return affected, err
}

func (r *reimbursementRepository) AppendHistory(ctx context.Context, h *models.ReimbursementHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *reimbursementRepository) ListHistory(ctx context.Context, reimbursementID uint) ([]models.ReimbursementHistory, error) {
	var rows []models.ReimbursementHistory
	err := r.db.WithContext(ctx).
		Where("reimbursement_id = ?", reimbursementID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
