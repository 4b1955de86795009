package config

import (
	_ "embed"
	"errors"
	"fmt"

	"consigaz-valegas/internal/adapters/persistence/models"
	"consigaz-valegas/internal/pkg/password"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed settings.yaml
var defaultSettingsYAML []byte

// SettingDefault is one entry of settings.yaml
type SettingDefault struct {
	Key         string `yaml:"key"`
	Value       string `yaml:"value"`
	Description string `yaml:"description"`
}

// DefaultSettings parses the embedded settings file
func DefaultSettings() ([]SettingDefault, error) {
	var defaults []SettingDefault
	if err := yaml.Unmarshal(defaultSettingsYAML, &defaults); err != nil {
		return nil, fmt.Errorf("parse settings.yaml: %w", err)
	}
	for _, d := range defaults {
		if d.Key == "" {
			return nil, errors.New("settings.yaml: entry without key")
		}
	}
	return defaults, nil
}

// Seeder handles database seeding
type Seeder struct {
	db   *gorm.DB
	cfg  *Config
	log  *zap.Logger
	cost int
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, cfg *Config, log *zap.Logger) *Seeder {
	return &Seeder{db: db, cfg: cfg, log: log.Named("seeder"), cost: password.DefaultCost}
}

// Run executes all seeders. Failures are logged and do not stop startup.
func (s *Seeder) Run() error {
	s.log.Info("🌱 Running database seeders")

	if err := s.SeedSettings(); err != nil {
		return err
	}
	if err := s.seedAdminUser(); err != nil {
		s.log.Warn("⚠️ Admin seeder skipped", zap.Error(err))
	}

	s.log.Info("✅ Database seeding completed")
	return nil
}

// SeedSettings inserts missing business settings, leaving edited values alone
func (s *Seeder) SeedSettings() error {
	defaults, err := DefaultSettings()
	if err != nil {
		return err
	}

	rows := make([]models.Setting, 0, len(defaults))
	for _, d := range defaults {
		rows = append(rows, models.Setting{Key: d.Key, Value: d.Value, Description: d.Description})
	}

	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// seedAdminUser creates the first ADMIN when none exists and a seed
// password is configured
func (s *Seeder) seedAdminUser() error {
	var count int64
	if err := s.db.Model(&models.AdminUser{}).Where("role = ?", "ADMIN").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if s.cfg.Seed.AdminPassword == "" {
		s.log.Warn("⚠️ No ADMIN user and ADMIN_SEED_PASSWORD is empty; create one manually")
		return nil
	}
	if !password.Valid(s.cfg.Seed.AdminPassword) {
		return fmt.Errorf("ADMIN_SEED_PASSWORD must have at least %d characters", password.MinLength)
	}

	hashed, err := password.HashWithCost(s.cfg.Seed.AdminPassword, s.cost)
	if err != nil {
		return err
	}

	admin := &models.AdminUser{
		Username: s.cfg.Seed.AdminUsername,
		Name:     "Administrator",
		Email:    s.cfg.Seed.AdminEmail,
		Password: hashed,
		Role:     "ADMIN",
		IsActive: true,
	}
	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	s.log.Info("✅ Admin user created", zap.String("username", admin.Username))
	return nil
}
