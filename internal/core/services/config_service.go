package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"consigaz-valegas/internal/adapters/persistence/models"
	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/core/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Setting keys read by the core
const (
	KeyMonthlyQuota         = "vales_por_mes"
	KeyValidityDays         = "dias_validade_vale"
	KeyGenerationDay        = "dia_geracao_automatica"
	KeyReminderOffsets      = "notificar_expiracao_dias"
	KeyDefaultReimbursement = "valor_reembolso_padrao"
	KeyAutoReimbursement    = "gerar_reembolso_automatico"
)

const (
	configCachePrefix = "config:"
	configCacheTTL    = 15 * time.Minute
)

// ConfigProvider is the configuration dependency of the core
type ConfigProvider interface {
	Get(ctx context.Context, key, def string) string
	Invalidate(prefix string)
}

type cachedValue struct {
	value     string
	expiresAt time.Time
}

// SettingsService reads settings through a TTL cache and writes them with
// cache invalidation and an audit row.
type SettingsService struct {
	repo  repositories.SettingRepository
	audit *AuditService
	log   *zap.Logger
	ttl   time.Duration
	now   Clock

	mu    sync.RWMutex
	cache map[string]cachedValue
}

// NewSettingsService creates a new settings service
func NewSettingsService(repo repositories.SettingRepository, audit *AuditService, log *zap.Logger) *SettingsService {
	return &SettingsService{
		repo:  repo,
		audit: audit,
		log:   log.Named("settings"),
		ttl:   configCacheTTL,
		now:   time.Now,
		cache: make(map[string]cachedValue),
	}
}

// Get returns the stored value of key, or def when it is missing or the
// store is unavailable. Store failures are not cached.
func (s *SettingsService) Get(ctx context.Context, key, def string) string {
	cacheKey := configCachePrefix + key

	s.mu.RLock()
	cv, ok := s.cache[cacheKey]
	s.mu.RUnlock()
	if ok && s.now().Before(cv.expiresAt) {
		return cv.value
	}

	value := def
	setting, err := s.repo.Get(ctx, key)
	switch {
	case err == nil:
		value = setting.Value
	case errors.Is(err, repositories.ErrNotFound):
	default:
		s.log.Warn("setting lookup failed, using default", zap.String("key", key), zap.Error(err))
		return def
	}

	s.mu.Lock()
	s.cache[cacheKey] = cachedValue{value: value, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return value
}

// Invalidate drops every cached entry whose key starts with prefix
func (s *SettingsService) Invalidate(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.cache {
		if strings.HasPrefix(k, prefix) {
			delete(s.cache, k)
		}
	}
}

// List returns all settings
func (s *SettingsService) List(ctx context.Context) ([]models.Setting, error) {
	rows, err := s.repo.List(ctx)
	return rows, domain.Persistence("list settings", err)
}

// Update changes one existing setting after validating its value
func (s *SettingsService) Update(ctx context.Context, key, value string, actor Actor) (*models.Setting, error) {
	value = strings.TrimSpace(value)
	if err := validateSetting(key, value); err != nil {
		return nil, err
	}

	before, err := s.repo.Get(ctx, key)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, domain.NotFound("setting")
	}
	if err != nil {
		return nil, domain.Persistence("get setting", err)
	}

	if _, err := s.repo.UpdateValue(ctx, key, value); err != nil {
		return nil, domain.Persistence("update setting", err)
	}
	s.Invalidate(configCachePrefix)

	s.audit.Record(ctx, AuditEntry{
		Actor:  actor,
		Action: "update_setting",
		Entity: "setting",
		Details: map[string]interface{}{
			"key":      key,
			"previous": before.Value,
			"value":    value,
		},
	})
	s.log.Info("setting updated", zap.String("key", key), zap.String("value", value), zap.String("by", actor.Name))

	after, err := s.repo.Get(ctx, key)
	return after, domain.Persistence("get setting", err)
}

func validateSetting(key, value string) error {
	if value == "" {
		return domain.Invalid("value", "value is required")
	}

	switch key {
	case KeyMonthlyQuota, KeyValidityDays:
		if n, err := strconv.Atoi(value); err != nil || n < 1 {
			return domain.Invalid("value", "must be a positive integer")
		}
	case KeyGenerationDay:
		if n, err := strconv.Atoi(value); err != nil || n < 1 || n > 31 {
			return domain.Invalid("value", "must be a day between 1 and 31")
		}
	case KeyReminderOffsets:
		if len(parseOffsets(value)) == 0 {
			return domain.Invalid("value", "must be a comma separated list of positive integers")
		}
	case KeyDefaultReimbursement:
		if d, err := decimal.NewFromString(value); err != nil || d.IsNegative() {
			return domain.Invalid("value", "must be a non-negative amount")
		}
	case KeyAutoReimbursement:
		if _, err := strconv.ParseBool(value); err != nil {
			return domain.Invalid("value", "must be true or false")
		}
	}
	return nil
}

// ============================================================
// Typed readers
// ============================================================

// Rules reads business settings with their defaults. Malformed stored
// values fall back to the default.
type Rules struct {
	cfg ConfigProvider
}

// NewRules wraps a provider
func NewRules(cfg ConfigProvider) Rules {
	return Rules{cfg: cfg}
}

func (r Rules) positiveInt(ctx context.Context, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.cfg.Get(ctx, key, strconv.Itoa(def))))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// MonthlyQuota is vouchers per employee per reference month
func (r Rules) MonthlyQuota(ctx context.Context) int {
	return r.positiveInt(ctx, KeyMonthlyQuota, 1)
}

// ValidityDays is how long a voucher stays valid after issuance
func (r Rules) ValidityDays(ctx context.Context) int {
	return r.positiveInt(ctx, KeyValidityDays, 30)
}

// GenerationDay is the day of month the scheduled batch runs
func (r Rules) GenerationDay(ctx context.Context) int {
	d := r.positiveInt(ctx, KeyGenerationDay, 1)
	if d > 31 {
		return 1
	}
	return d
}

// ReminderOffsets are the days-before-expiry on which reminders go out
func (r Rules) ReminderOffsets(ctx context.Context) []int {
	offsets := parseOffsets(r.cfg.Get(ctx, KeyReminderOffsets, "7,3,1"))
	if len(offsets) == 0 {
		return []int{7, 3, 1}
	}
	return offsets
}

// DefaultReimbursementAmount is used for automatic and amount-less claims
func (r Rules) DefaultReimbursementAmount(ctx context.Context) decimal.Decimal {
	def := decimal.NewFromInt(100)
	d, err := decimal.NewFromString(strings.TrimSpace(r.cfg.Get(ctx, KeyDefaultReimbursement, "100.00")))
	if err != nil || d.IsNegative() {
		return def
	}
	return d.Round(2)
}

// AutoReimbursement reports whether redemptions at external distributors
// create a reimbursement
func (r Rules) AutoReimbursement(ctx context.Context) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(r.cfg.Get(ctx, KeyAutoReimbursement, "true")))
	if err != nil {
		return true
	}
	return b
}

func parseOffsets(s string) []int {
	var offsets []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 || seen[n] {
			continue
		}
		seen[n] = true
		offsets = append(offsets, n)
	}
	return offsets
}
