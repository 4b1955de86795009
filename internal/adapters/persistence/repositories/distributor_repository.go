package repositories

import (
	"context"

	"consigaz-valegas/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

type distributorRepository struct {
	db *gorm.DB
}

// NewDistributorRepository creates a new distributor repository
func NewDistributorRepository(db *gorm.DB) DistributorRepository {
	return &distributorRepository{db: db}
}

func (r *distributorRepository) Create(ctx context.Context, d *models.Distributor) error {
	return mapError(r.db.WithContext(ctx).Create(d).Error)
}

func (r *distributorRepository) GetByID(ctx context.Context, id uint) (*models.Distributor, error) {
	var d models.Distributor
	if err := r.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, mapError(err)
	}
	return &d, nil
}

func (r *distributorRepository) GetByEmail(ctx context.Context, email string) (*models.Distributor, error) {
	var d models.Distributor
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&d).Error; err != nil {
		return nil, mapError(err)
	}
	return &d, nil
}

func (r *distributorRepository) List(ctx context.Context, f DistributorFilter, offset, limit int) ([]models.Distributor, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Distributor{})
	if f.Search != "" {
		p := likePattern(f.Search)
		q = q.Where("name LIKE ? OR document LIKE ? OR city LIKE ?", p, p, p)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var distributors []models.Distributor
	err := q.Order("name ASC").Offset(offset).Limit(limit).Find(&distributors).Error
	return distributors, total, err
}

func (r *distributorRepository) Update(ctx context.Context, id uint, changes map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Distributor{}).
		Where("id = ?", id).
		Updates(changes)
	return res.RowsAffected, mapError(res.Error)
}

func (r *distributorRepository) Deactivate(ctx context.Context, id uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Distributor{}).
		Where("id = ?", id).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
