package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"consigaz-valegas/internal/adapters/events"
	"consigaz-valegas/internal/adapters/persistence/models"
	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/pkg/pagination"
	"consigaz-valegas/internal/pkg/storage"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err, "failed to open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.AutoMigrate(db), "failed to migrate test database")
	return db
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) ofType(t events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// harness wires every service over one in-memory database with a pinned clock
type harness struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB
	now time.Time
	pub *recordingPublisher

	voucherRepo   repositories.VoucherRepository
	historyRepo   repositories.RedemptionHistoryRepository
	rbRepo        repositories.ReimbursementRepository
	auditRepo     repositories.AuditLogRepository
	employeeRepo  repositories.EmployeeRepository
	distRepo      repositories.DistributorRepository
	settingRepo   repositories.SettingRepository
	adminRepo     repositories.AdminUserRepository
	webhookRepo   repositories.WebhookLogRepository
	store         *storage.LocalStore
	settings      *SettingsService
	audit         *AuditService
	vouchers      *VoucherService
	redemption    *RedemptionService
	reimbursement *ReimbursementService
	registry      *RegistryService
}

var defaultTestSettings = map[string]string{
	KeyMonthlyQuota:         "1",
	KeyValidityDays:         "30",
	KeyGenerationDay:        "1",
	KeyReminderOffsets:      "7,3,1",
	KeyDefaultReimbursement: "100.00",
	KeyAutoReimbursement:    "true",
}

func newHarness(t *testing.T) *harness {
	db := setupTestDB(t)
	log := zaptest.NewLogger(t)

	for k, v := range defaultTestSettings {
		require.NoError(t, db.Create(&models.Setting{Key: k, Value: v}).Error)
	}

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		t:            t,
		ctx:          context.Background(),
		db:           db,
		now:          time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC),
		pub:          &recordingPublisher{},
		voucherRepo:  repositories.NewVoucherRepository(db),
		historyRepo:  repositories.NewRedemptionHistoryRepository(db),
		rbRepo:       repositories.NewReimbursementRepository(db),
		auditRepo:    repositories.NewAuditLogRepository(db),
		employeeRepo: repositories.NewEmployeeRepository(db),
		distRepo:     repositories.NewDistributorRepository(db),
		settingRepo:  repositories.NewSettingRepository(db),
		adminRepo:    repositories.NewAdminUserRepository(db),
		webhookRepo:  repositories.NewWebhookLogRepository(db),
		store:        store,
	}
	clock := func() time.Time { return h.now }

	h.audit = NewAuditService(h.auditRepo, log)
	h.settings = NewSettingsService(h.settingRepo, h.audit, log)
	h.settings.now = clock

	h.vouchers = NewVoucherService(h.voucherRepo, h.employeeRepo, h.settings, h.pub, h.audit, time.UTC, log)
	h.vouchers.now = clock
	h.vouchers.retryPolicy = fastRetry

	h.reimbursement = NewReimbursementService(h.rbRepo, h.voucherRepo, h.distRepo, h.adminRepo, store, h.settings, h.pub, h.audit, time.UTC, log)
	h.reimbursement.now = clock

	h.redemption = NewRedemptionService(h.voucherRepo, h.historyRepo, h.distRepo, h.reimbursement, h.settings, h.pub, time.UTC, log)
	h.redemption.now = clock

	h.registry = NewRegistryService(h.employeeRepo, h.distRepo, h.audit, log)
	h.registry.hashCost = 4
	return h
}

var admin = Actor{Type: ActorAdmin, ID: 1, Name: "Ana Admin", IP: "10.0.0.1"}

var fixtureSeq int64

func (h *harness) setSetting(key, value string) {
	_, err := h.settingRepo.UpdateValue(h.ctx, key, value)
	require.NoError(h.t, err)
	h.settings.Invalidate(configCachePrefix)
}

func (h *harness) employee(active bool) *models.Employee {
	n := atomic.AddInt64(&fixtureSeq, 1)
	e := &models.Employee{
		Name:     fmt.Sprintf("Employee %d", n),
		Document: fmt.Sprintf("%011d", n),
		Email:    fmt.Sprintf("employee%d@example.com", n),
		Phone:    "11999990000",
		City:     "Campinas",
		State:    "SP",
		IsActive: true,
	}
	require.NoError(h.t, h.db.Create(e).Error)
	if !active {
		require.NoError(h.t, h.db.Model(e).Update("is_active", false).Error)
		e.IsActive = false
	}
	return e
}

func (h *harness) distributor(kind string) *models.Distributor {
	n := atomic.AddInt64(&fixtureSeq, 1)
	d := &models.Distributor{
		Name:     fmt.Sprintf("Distributor %d", n),
		Document: fmt.Sprintf("%014d", n),
		Email:    fmt.Sprintf("dist%d@example.com", n),
		Password: "hash",
		Kind:     kind,
		Bank:     "001",
		Agency:   "1234",
		Account:  "55555-0",
		PixKey:   fmt.Sprintf("pix%d@example.com", n),
		IsActive: true,
	}
	require.NoError(h.t, h.db.Create(d).Error)
	return d
}

// voucher inserts an active voucher of the current month expiring in days
func (h *harness) voucher(employeeID uint, days int) *models.Voucher {
	n := atomic.AddInt64(&fixtureSeq, 1)
	v := &models.Voucher{
		Code:           fmt.Sprintf("VG-T%05d", n),
		EmployeeID:     employeeID,
		ReferenceMonth: "2024-05",
		Status:         "active",
		IssuedAt:       h.now,
		ExpiresAt:      h.now.AddDate(0, 0, days),
	}
	require.NoError(h.t, h.db.Create(v).Error)
	return v
}

// redeemedClaim redeems a fresh voucher at an external distributor and
// returns the reimbursement created for it
func (h *harness) redeemedClaim() *models.Reimbursement {
	emp := h.employee(true)
	dist := h.distributor("external")
	v := h.voucher(emp.ID, 20)

	res, err := h.redemption.Redeem(h.ctx, v.Code, dist.ID)
	require.NoError(h.t, err)
	require.True(h.t, res.Valid)
	require.NotNil(h.t, res.ReimbursementID)

	rb, err := h.rbRepo.GetByID(h.ctx, *res.ReimbursementID)
	require.NoError(h.t, err)
	return rb
}

func (h *harness) auditActions() []string {
	var rows []models.AuditLog
	require.NoError(h.t, h.db.Order("id ASC").Find(&rows).Error)
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Action)
	}
	return out
}

func itoa(n int) string { return strconv.Itoa(n) }

func pageOf(page, limit int) pagination.Params { return pagination.New(page, limit) }
