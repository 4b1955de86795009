package routes

import (
	"context"
	"time"

	"consigaz-valegas/internal/adapters/events"
	"consigaz-valegas/internal/adapters/http/handlers"
	"consigaz-valegas/internal/adapters/http/middleware"
	"consigaz-valegas/internal/adapters/persistence/repositories"
	"consigaz-valegas/internal/config"
	"consigaz-valegas/internal/core/services"
	"consigaz-valegas/internal/pkg/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the process-level collaborators built in main
type Deps struct {
	Log       *zap.Logger
	Publisher events.Publisher
	Store     storage.Store
}

// Background are the services main starts and stops
type Background struct {
	Cron          *services.CronService
	Notifications *services.NotificationService
}

// Setup configures all routes for the application
func Setup(app *fiber.App, db *gorm.DB, cfg *config.Config, deps Deps) *Background {
	log := deps.Log

	// Initialize repositories
	adminRepo := repositories.NewAdminUserRepository(db)
	employeeRepo := repositories.NewEmployeeRepository(db)
	distributorRepo := repositories.NewDistributorRepository(db)
	voucherRepo := repositories.NewVoucherRepository(db)
	redemptionRepo := repositories.NewRedemptionHistoryRepository(db)
	reimbursementRepo := repositories.NewReimbursementRepository(db)
	settingRepo := repositories.NewSettingRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	webhookRepo := repositories.NewWebhookLogRepository(db)

	// Initialize services
	auditService := services.NewAuditService(auditRepo, log)
	settingsService := services.NewSettingsService(settingRepo, auditService, log)
	authService := services.NewAuthService(adminRepo, distributorRepo, employeeRepo, auditService, cfg, log)
	registryService := services.NewRegistryService(employeeRepo, distributorRepo, auditService, log)

	voucherService := services.NewVoucherService(voucherRepo, employeeRepo, settingsService, deps.Publisher, auditService, cfg.Location, log)
	reimbursementService := services.NewReimbursementService(
		reimbursementRepo,
		voucherRepo,
		distributorRepo,
		adminRepo,
		deps.Store,
		settingsService,
		deps.Publisher,
		auditService,
		cfg.Location,
		log,
	)
	redemptionService := services.NewRedemptionService(
		voucherRepo,
		redemptionRepo,
		distributorRepo,
		reimbursementService,
		settingsService,
		deps.Publisher,
		cfg.Location,
		log,
	)

	notificationService := services.NewNotificationService(cfg.Webhooks, webhookRepo, employeeRepo, distributorRepo, log)
	cronService := services.NewCronService(voucherService, settingsService, auditService, cfg.Location, log)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.AppMode, map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error { return config.Ping(ctx, db) },
	})
	authHandler := handlers.NewAuthHandler(authService, cfg, log)
	voucherHandler := handlers.NewVoucherHandler(voucherService, log)
	distributorHandler := handlers.NewDistributorHandler(redemptionService, reimbursementService, log)
	employeeHandler := handlers.NewEmployeeHandler(voucherService, log)
	reimbursementHandler := handlers.NewReimbursementHandler(reimbursementService, cfg.Location, log)
	registryHandler := handlers.NewRegistryHandler(registryService, log)
	systemHandler := handlers.NewSystemHandler(settingsService, auditService, notificationService, log)
	cronHandler := handlers.NewCronHandler(cronService)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API v1 group
	apiV1 := app.Group("/api/v1")
	apiV1.Get("/", healthHandler.APIInfo)

	setupAuthRoutes(apiV1, authHandler, cfg)
	setupCronRoutes(apiV1, cronHandler, cfg)

	protected := apiV1.Group("", middleware.AuthMiddleware(cfg))
	protected.Get("/auth/me", authHandler.Me)
	protected.Post("/auth/password", authHandler.ChangePassword)

	setupDistributorRoutes(protected, distributorHandler)
	setupEmployeeRoutes(protected, employeeHandler)
	setupVoucherRoutes(protected, voucherHandler)
	setupReimbursementRoutes(protected, reimbursementHandler)
	setupRegistryRoutes(protected, registryHandler, voucherHandler)
	setupSystemRoutes(protected, systemHandler)

	return &Background{Cron: cronService, Notifications: notificationService}
}

// setupAuthRoutes configures the login endpoints
func setupAuthRoutes(router fiber.Router, h *handlers.AuthHandler, cfg *config.Config) {
	limit := func(c *fiber.Ctx) error { return c.Next() }
	if cfg.IsProd() {
		limit = middleware.AuthRateLimiter()
	}

	router.Post("/auth/admin/login", limit, h.LoginAdmin)
	router.Post("/auth/distributor/login", limit, h.LoginDistributor)
	router.Post("/auth/employee/login", limit, h.LoginEmployee)
	router.Post("/auth/logout", h.Logout)
}

// setupCronRoutes configures the cron-key protected job triggers
func setupCronRoutes(router fiber.Router, h *handlers.CronHandler, cfg *config.Config) {
	cron := router.Group("/cron", middleware.CronKeyMiddleware(cfg), middleware.NoCacheHeaders())
	if cfg.IsProd() {
		cron.Use(middleware.StrictRateLimiter())
	}
	cron.Get("/status", h.Status)
	cron.Post("/generate-monthly", h.GenerateMonthly)
	cron.Post("/expire-vouchers", h.ExpireVouchers)
	cron.Post("/expiry-reminders", h.ExpiryReminders)
}

// setupDistributorRoutes configures the distribution point panel. Route-level
// middleware: a "/distributor" group prefix would also catch "/distributors".
func setupDistributorRoutes(router fiber.Router, h *handlers.DistributorHandler) {
	dist := middleware.DistributorOnly()
	noCache := middleware.NoCacheHeaders()

	router.Get("/distributor/vouchers/:code", dist, noCache, h.Inspect)
	router.Post("/distributor/vouchers\\:redeem", dist, noCache, h.Redeem)
	router.Get("/distributor/history", dist, noCache, h.History)
	router.Get("/distributor/dashboard", dist, noCache, h.Dashboard)
	router.Get("/distributor/reimbursements/pending", dist, noCache, h.PendingReimbursements)
}

// setupEmployeeRoutes configures the employee self-service endpoints
func setupEmployeeRoutes(router fiber.Router, h *handlers.EmployeeHandler) {
	emp := middleware.EmployeeOnly()
	noCache := middleware.NoCacheHeaders()

	router.Get("/employee/vouchers/history", emp, noCache, h.VoucherHistory)
	router.Get("/employee/vouchers", emp, noCache, h.CurrentVouchers)
}

// setupVoucherRoutes configures admin voucher endpoints
func setupVoucherRoutes(router fiber.Router, h *handlers.VoucherHandler) {
	panel := middleware.AdminOrSupervisor()

	router.Post("/vouchers\\:issue", panel, h.Issue)
	router.Post("/vouchers\\:issueMonthly", panel, h.IssueMonthly)
	router.Get("/vouchers/stats", panel, middleware.PrivateCacheHeaders(30*time.Second), h.Stats)
	router.Get("/vouchers", panel, h.List)
}

// setupReimbursementRoutes configures the reimbursement pipeline.
// Reads are open to the admin panel; writes are ADMIN only.
func setupReimbursementRoutes(router fiber.Router, h *handlers.ReimbursementHandler) {
	panel := middleware.AdminOrSupervisor()
	admin := middleware.AdminOnly()

	router.Get("/reimbursements\\:exportCsv", panel, h.ExportCSV)
	router.Get("/reimbursements/pending/:distributorId", panel, h.PendingForDistributor)
	router.Get("/reimbursements", panel, h.List)
	router.Get("/reimbursements/:id", panel, h.Get)
	router.Get("/reimbursements/:id/files/:slot", panel, h.Download)

	router.Post("/reimbursements\\:bulkCreate", admin, h.BulkCreate)
	router.Post("/reimbursements", admin, h.Create)
	router.Put("/reimbursements/:id", admin, h.Edit)
	router.Delete("/reimbursements/:id", admin, h.Delete)
	router.Post("/reimbursements/:id\\:approve", admin, h.Approve)
	router.Post("/reimbursements/:id\\:reject", admin, h.Reject)
	router.Post("/reimbursements/:id\\:markPaid", admin, h.MarkPaid)
	router.Post("/reimbursements/:id\\:upload", admin, h.Upload)
}

// setupRegistryRoutes configures employee and distributor maintenance
func setupRegistryRoutes(router fiber.Router, h *handlers.RegistryHandler, vh *handlers.VoucherHandler) {
	panel := middleware.AdminOrSupervisor()
	admin := middleware.AdminOnly()

	router.Get("/employees", panel, h.ListEmployees)
	router.Get("/employees/:id", panel, h.GetEmployee)
	router.Get("/employees/:id/vouchers", panel, vh.ListForEmployee)
	router.Post("/employees", admin, h.CreateEmployee)
	router.Post("/employees\\:import", admin, h.ImportEmployees)
	router.Put("/employees/:id", admin, h.UpdateEmployee)
	router.Post("/employees/:id\\:deactivate", admin, h.DeactivateEmployee)

	router.Get("/distributors", panel, h.ListDistributors)
	router.Get("/distributors/:id", panel, h.GetDistributor)
	router.Post("/distributors", admin, h.CreateDistributor)
	router.Put("/distributors/:id", admin, h.UpdateDistributor)
	router.Post("/distributors/:id\\:deactivate", admin, h.DeactivateDistributor)
}

// setupSystemRoutes configures settings, audit and webhook endpoints
func setupSystemRoutes(router fiber.Router, h *handlers.SystemHandler) {
	admin := middleware.AdminOnly()

	router.Get("/settings", admin, h.ListSettings)
	router.Put("/settings/:key", admin, h.UpdateSetting)
	router.Get("/audit-logs", admin, h.AuditLogs)
	router.Get("/webhooks/stats", admin, h.WebhookStats)
}
