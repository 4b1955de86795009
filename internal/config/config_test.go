package config

import (
	"testing"
	"time"

	"consigaz-valegas/internal/adapters/persistence/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func TestLoad(t *testing.T) {
	t.Setenv("APP_MODE", "prod")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("PROD_JWT_SECRET", "s3cret")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("WEBHOOK_TIMEOUT_SECONDS", "abc")
	t.Setenv("CRON_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Second, cfg.Webhooks.Timeout)
	assert.False(t, cfg.Cron.Enabled)
	assert.Equal(t, 480*time.Minute, cfg.AccessTokenTTL())
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"mode":          {"APP_MODE": "staging"},
		"driver":        {"APP_MODE": "dev", "DB_DRIVER": "sqlite"},
		"timezone":      {"APP_MODE": "dev", "TIMEZONE": "Mars/Olympus"},
		"default token": {"APP_MODE": "prod", "DB_DRIVER": "mysql", "PROD_JWT_SECRET": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("TIMEZONE", "UTC")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDialector(t *testing.T) {
	assert.Equal(t, "postgres", dialector(DatabaseConfig{Driver: "postgres"}).Name())
	assert.Equal(t, "mysql", dialector(DatabaseConfig{Driver: "mysql"}).Name())
}

func TestDefaultSettings(t *testing.T) {
	defaults, err := DefaultSettings()
	require.NoError(t, err)

	got := map[string]string{}
	for _, d := range defaults {
		assert.NotEmpty(t, d.Description, d.Key)
		got[d.Key] = d.Value
	}
	assert.Equal(t, map[string]string{
		"vales_por_mes":              "1",
		"dias_validade_vale":         "30",
		"dia_geracao_automatica":     "1",
		"notificar_expiracao_dias":   "7,3,1",
		"valor_reembolso_padrao":     "100.00",
		"gerar_reembolso_automatico": "true",
	}, got)
}

func TestSeeder(t *testing.T) {
	db := setupTestDB(t)
	cfg := &Config{Seed: SeedConfig{AdminUsername: "admin", AdminPassword: "trocar123", AdminEmail: "admin@example.com"}}
	s := NewSeeder(db, cfg, zaptest.NewLogger(t))
	s.cost = 4

	require.NoError(t, s.Run())
	require.NoError(t, db.Model(&models.Setting{}).Where("setting_key = ?", "vales_por_mes").Update("value", "3").Error)
	require.NoError(t, s.Run(), "seeding twice is harmless")

	var settings []models.Setting
	require.NoError(t, db.Find(&settings).Error)
	assert.Len(t, settings, 6)
	for _, st := range settings {
		if st.Key == "vales_por_mes" {
			assert.Equal(t, "3", st.Value, "edited values survive a reseed")
		}
	}

	var admins []models.AdminUser
	require.NoError(t, db.Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.Equal(t, "ADMIN", admins[0].Role)
	assert.NotEqual(t, "trocar123", admins[0].Password)
}

func TestSeeder_NoAdminPassword(t *testing.T) {
	db := setupTestDB(t)
	s := NewSeeder(db, &Config{Seed: SeedConfig{AdminPassword: "curta"}}, zaptest.NewLogger(t))

	require.NoError(t, s.Run())
	var count int64
	require.NoError(t, db.Model(&models.AdminUser{}).Count(&count).Error)
	assert.Zero(t, count)
}
