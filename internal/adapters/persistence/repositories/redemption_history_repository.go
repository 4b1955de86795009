package repositories

import (
	"context"
	"time"

	"consigaz-valegas/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

type redemptionHistoryRepository struct {
	db *gorm.DB
}

// NewRedemptionHistoryRepository creates a new redemption history repository
func NewRedemptionHistoryRepository(db *gorm.DB) RedemptionHistoryRepository {
	return &redemptionHistoryRepository{db: db}
}

func (r *redemptionHistoryRepository) Create(ctx context.Context, h *models.RedemptionHistory) error {
	return mapError(r.db.WithContext(ctx).Create(h).Error)
}

func (r *redemptionHistoryRepository) GetByVoucherID(ctx context.Context, voucherID uint) (*models.RedemptionHistory, error) {
	var h models.RedemptionHistory
	if err := r.db.WithContext(ctx).Where("voucher_id = ?", voucherID).First(&h).Error; err != nil {
		return nil, mapError(err)
	}
	return &h, nil
}

func (r *redemptionHistoryRepository) ListByDistributor(ctx context.Context, distributorID uint, month string, offset, limit int) ([]models.RedemptionHistory, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.RedemptionHistory{}).Where("distributor_id = ?", distributorID)
	if month != "" {
		q = q.Where("reference_month = ?", month)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.RedemptionHistory
	err := q.Order("redeemed_at DESC").Offset(offset).Limit(limit).Find(&rows).Error
	return rows, total, err
}

func (r *redemptionHistoryRepository) CountSince(ctx context.Context, distributorID uint, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.RedemptionHistory{}).
		Where("distributor_id = ? AND redeemed_at >= ?", distributorID, since).
		Count(&n).Error
	return n, err
}

func (r *redemptionHistoryRepository) CountByMonth(ctx context.Context, distributorID uint, fromMonth string) ([]MonthCount, error) {
	var rows []MonthCount
	err := r.db.WithContext(ctx).Model(&models.RedemptionHistory{}).
		Select("reference_month, COUNT(*) AS total").
		Where("distributor_id = ? AND reference_month >= ?", distributorID, fromMonth).
		Group("reference_month").
		Order("reference_month ASC").
		Scan(&rows).Error
	return rows, err
}
