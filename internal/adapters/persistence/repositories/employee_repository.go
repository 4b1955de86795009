package repositories

import (
	"context"

	"consigaz-valegas/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

type employeeRepository struct {
	db *gorm.DB
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *gorm.DB) EmployeeRepository {
	return &employeeRepository{db: db}
}

func (r *employeeRepository) Create(ctx context.Context, e *models.Employee) error {
	return mapError(r.db.WithContext(ctx).Create(e).Error)
}

func (r *employeeRepository) GetByID(ctx context.Context, id uint) (*models.Employee, error) {
	var e models.Employee
	if err := r.db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, mapError(err)
	}
	return &e, nil
}

func (r *employeeRepository) GetByLogin(ctx context.Context, login string) (*models.Employee, error) {
	var e models.Employee
	err := r.db.WithContext(ctx).
		Where("document = ? OR email = ?", login, login).
		First(&e).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &e, nil
}

func (r *employeeRepository) List(ctx context.Context, f EmployeeFilter, offset, limit int) ([]models.Employee, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Employee{})
	if f.Search != "" {
		p := likePattern(f.Search)
		q = q.Where("name LIKE ? OR document LIKE ? OR email LIKE ? OR registration LIKE ?", p, p, p, p)
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var employees []models.Employee
	err := q.Order("name ASC").Offset(offset).Limit(limit).Find(&employees).Error
	return employees, total, err
}

func (r *employeeRepository) Update(ctx context.Context, id uint, changes map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ?", id).
		Updates(changes)
	return res.RowsAffected, mapError(res.Error)
}

// Deactivate turns the active flag off; employees are never deleted
func (r *employeeRepository) Deactivate(ctx context.Context, id uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ?", id).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
