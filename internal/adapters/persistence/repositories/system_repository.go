package repositories

import (
	"context"
	"time"

	"consigaz-valegas/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// ============================================================
// Settings
// ============================================================

type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new setting repository
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	var s models.Setting
	if err := r.db.WithContext(ctx).Where("setting_key = ?", key).First(&s).Error; err != nil {
		return nil, mapError(err)
	}
	return &s, nil
}

func (r *settingRepository) List(ctx context.Context) ([]models.Setting, error) {
	var rows []models.Setting
	err := r.db.WithContext(ctx).Order("setting_key ASC").Find(&rows).Error
	return rows, err
}

// UpdateValue changes an existing key; unknown keys affect no rows
func (r *settingRepository) UpdateValue(ctx context.Context, key, value string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Setting{}).
		Where("setting_key = ?", key).
		Updates(map[string]interface{}{"value": value, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

// ============================================================
// Audit logs
// ============================================================

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, l *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *auditLogRepository) List(ctx context.Context, f AuditFilter, offset, limit int) ([]models.AuditLog, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Entity != "" {
		q = q.Where("entity = ?", f.Entity)
	}
	if f.ActorType != "" {
		q = q.Where("actor_type = ?", f.ActorType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.AuditLog
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&rows).Error
	return rows, total, err
}

// ============================================================
// Webhook logs
// ============================================================

type webhookLogRepository struct {
	db *gorm.DB
}

// NewWebhookLogRepository creates a new webhook log repository
func NewWebhookLogRepository(db *gorm.DB) WebhookLogRepository {
	return &webhookLogRepository{db: db}
}

func (r *webhookLogRepository) Create(ctx context.Context, l *models.WebhookLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *webhookLogRepository) StatsSince(ctx context.Context, since time.Time) ([]WebhookTypeStats, error) {
	var rows []WebhookTypeStats
	err := r.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Select(`type,
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS successes,
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) AS failures`).
		Where("created_at >= ?", since).
		Group("type").
		Order("type ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *webhookLogRepository) Latest(ctx context.Context, limit int) ([]models.WebhookLog, error) {
	var rows []models.WebhookLog
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
