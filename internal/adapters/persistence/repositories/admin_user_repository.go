package repositories

import (
	"context"
	"time"

	"consigaz-valegas/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// adminUserRepository implements AdminUserRepository
type adminUserRepository struct {
	db *gorm.DB
}

// NewAdminUserRepository creates a new admin user repository
func NewAdminUserRepository(db *gorm.DB) AdminUserRepository {
	return &adminUserRepository{db: db}
}

func (r *adminUserRepository) Create(ctx context.Context, user *models.AdminUser) error {
	return mapError(r.db.WithContext(ctx).Create(user).Error)
}

func (r *adminUserRepository) GetByID(ctx context.Context, id uint) (*models.AdminUser, error) {
	var user models.AdminUser
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func (r *adminUserRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	var user models.AdminUser
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func (r *adminUserRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.AdminUser{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
}
