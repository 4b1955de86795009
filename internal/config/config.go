package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process configuration. Business rules (quota, validity,
// reimbursement amount) are not here: they live in the settings table.
type Config struct {
	AppMode  string
	Port     string
	Location *time.Location
	Database DatabaseConfig
	JWT      JWTConfig
	Cron     CronConfig
	Kafka    KafkaConfig
	Webhooks WebhookConfig
	Upload   UploadConfig
	Seed     SeedConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// JWTConfig holds access token configuration
type JWTConfig struct {
	Secret          string
	AccessTokenMins int
}

// CronConfig controls the in-process scheduler and the key for external triggers
type CronConfig struct {
	Enabled bool
	Key     string
}

// KafkaConfig selects the event bus. Empty Brokers means in-process delivery.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// WebhookConfig holds outbound notification URLs per event family
type WebhookConfig struct {
	CodeGenerated   string
	ExpiryReminder  string
	VoucherRedeemed string
	Reimbursement   string
	Timeout         time.Duration
}

// UploadConfig holds the proof-of-document directory
type UploadConfig struct {
	Dir string
}

// SeedConfig is the first admin created on an empty database
type SeedConfig struct {
	AdminUsername string
	AdminPassword string
	AdminEmail    string
}

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "America/Sao_Paulo"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	config := &Config{
		AppMode:  appMode,
		Port:     getEnv("PORT", "3000"),
		Location: loc,
		Database: loadDatabaseConfig(appMode),
		JWT:      loadJWTConfig(appMode),
		Cron:     loadCronConfig(),
		Kafka:    loadKafkaConfig(),
		Webhooks: loadWebhookConfig(),
		Upload:   UploadConfig{Dir: getEnv("UPLOAD_DIR", "./uploads/reimbursements")},
		Seed: SeedConfig{
			AdminUsername: getEnv("ADMIN_SEED_USERNAME", "admin"),
			AdminPassword: getEnv("ADMIN_SEED_PASSWORD", ""),
			AdminEmail:    getEnv("ADMIN_SEED_EMAIL", "admin@consigaz.com.br"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("invalid DB_DRIVER: '%s' (must be 'mysql' or 'postgres')", c.Database.Driver)
	}
	if c.IsProd() && c.JWT.Secret == "default_secret" {
		return fmt.Errorf("PROD_JWT_SECRET must be set in prod mode")
	}
	if c.Cron.Key == "" {
		log.Println("Warning: CRON_KEY not set, cron endpoints will reject every call")
	}
	return nil
}

func envPrefix(mode string) string {
	if mode == "prod" {
		return "PROD_"
	}
	return "DEV_"
}

// loadDatabaseConfig loads database config based on mode
func loadDatabaseConfig(mode string) DatabaseConfig {
	prefix := envPrefix(mode)
	driver := strings.ToLower(getEnv("DB_DRIVER", "mysql"))

	defaultPort := "3306"
	if driver == "postgres" {
		defaultPort = "5432"
	}

	return DatabaseConfig{
		Driver:   driver,
		Host:     getEnv(prefix+"DB_HOST", "localhost"),
		Port:     getEnv(prefix+"DB_PORT", defaultPort),
		User:     getEnv(prefix+"DB_USER", "root"),
		Password: getEnv(prefix+"DB_PASS", ""),
		DBName:   getEnv(prefix+"DB_NAME", "valegas"),
	}
}

// loadJWTConfig loads JWT config based on mode
func loadJWTConfig(mode string) JWTConfig {
	accessMins, _ := strconv.Atoi(getEnv("ACCESS_TOKEN_MINUTES", "480"))

	return JWTConfig{
		Secret:          getEnv(envPrefix(mode)+"JWT_SECRET", "default_secret"),
		AccessTokenMins: accessMins,
	}
}

func loadCronConfig() CronConfig {
	enabled, err := strconv.ParseBool(getEnv("CRON_ENABLED", "true"))
	if err != nil {
		enabled = true
	}
	return CronConfig{
		Enabled: enabled,
		Key:     getEnv("CRON_KEY", ""),
	}
}

func loadKafkaConfig() KafkaConfig {
	var brokers []string
	for _, b := range strings.Split(getEnv("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return KafkaConfig{
		Brokers: brokers,
		Topic:   getEnv("KAFKA_TOPIC", "valegas.events"),
		GroupID: getEnv("KAFKA_GROUP_ID", "valegas-notifier"),
	}
}

func loadWebhookConfig() WebhookConfig {
	secs, err := strconv.Atoi(getEnv("WEBHOOK_TIMEOUT_SECONDS", "10"))
	if err != nil || secs <= 0 {
		secs = 10
	}
	return WebhookConfig{
		CodeGenerated:   getEnv("WEBHOOK_CODE_GENERATED", ""),
		ExpiryReminder:  getEnv("WEBHOOK_EXPIRY_REMINDER", ""),
		VoucherRedeemed: getEnv("WEBHOOK_VOUCHER_REDEEMED", ""),
		Reimbursement:   getEnv("WEBHOOK_REIMBURSEMENT", ""),
		Timeout:         time.Duration(secs) * time.Second,
	}
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}

// AccessTokenTTL is the lifetime of issued access tokens
func (c *Config) AccessTokenTTL() time.Duration {
	if c.JWT.AccessTokenMins <= 0 {
		return 8 * time.Hour
	}
	return time.Duration(c.JWT.AccessTokenMins) * time.Minute
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" {
		if c.IsDev() {
			return "*"
		}
		return "https://valegas.consigaz.com.br"
	}
	return origins
}
