package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"farmapos/internal/core/numerator"
	"farmapos/internal/domain/auth"
	"farmapos/internal/domain/catalogs/customer"
	"farmapos/internal/domain/catalogs/stockunit"
	custledger "farmapos/internal/domain/ledgers/customer"
	"farmapos/internal/domain/prescriptions"
	"farmapos/internal/domain/pricing"
	"farmapos/internal/domain/registers/controlled"
	"farmapos/internal/domain/registers/stock"
	"farmapos/internal/domain/reports"
	"farmapos/internal/domain/settlement"
	"farmapos/internal/infrastructure/http/v1/handlers"
	"farmapos/internal/infrastructure/http/v1/middleware"
	"farmapos/internal/infrastructure/storage/postgres"
	"farmapos/internal/infrastructure/storage/postgres/catalog_repo"
	"farmapos/internal/infrastructure/storage/postgres/document_repo"
	"farmapos/internal/infrastructure/storage/postgres/ledger_repo"
	"farmapos/internal/infrastructure/storage/postgres/register_repo"
	"farmapos/internal/infrastructure/storage/postgres/report_repo"
	"farmapos/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the database connection pool (health checks, idempotency)
	Pool *postgres.Pool

	// TxManager runs settlement transactions
	TxManager *postgres.TxManager

	// Logger for request logging
	Logger *logger.Logger

	// JWT issues and validates operator tokens
	JWT *auth.JWTService

	// Numerator for document number generation
	Numerator numerator.Generator

	// Pricing is the compiled discount rule set
	Pricing *pricing.Evaluator

	// Audit records operator-attributed history (optional)
	Audit *postgres.AuditService

	// Outbox publishes settlement events transactionally (optional)
	Outbox *postgres.OutboxPublisher

	// IdempotencyEnabled enables idempotency middleware
	IdempotencyEnabled bool

	// IdempotencyTTL is how long completed keys replay; zero means 10 minutes
	IdempotencyTTL time.Duration
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.Gzip())
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	baseHandler := handlers.NewBaseHandler()

	// --- Repositories ---
	stockUnitRepo := catalog_repo.NewStockUnitRepo(cfg.TxManager)
	customerRepo := catalog_repo.NewCustomerRepo(cfg.TxManager)
	stockRepo := register_repo.NewStockRepo(cfg.TxManager)
	controlledRepo := register_repo.NewControlledRepo(cfg.TxManager)
	ledgerRepo := ledger_repo.NewCustomerLedgerRepo(cfg.TxManager)
	saleRepo := document_repo.NewSaleRepo(cfg.TxManager)
	rxRepo := document_repo.NewPrescriptionRepo(cfg.TxManager)
	reportRepo := report_repo.NewReportRepo(cfg.TxManager)

	// --- Services ---
	stockUnitService := stockunit.NewService(stockUnitRepo)
	customerService := customer.NewService(customerRepo)
	stockService := stock.NewService(stockRepo)
	controlledService := controlled.NewService(controlledRepo)
	ledgerService := custledger.NewService(ledgerRepo, customerRepo)
	rxService := prescriptions.NewService(rxRepo, cfg.TxManager, cfg.Numerator)
	reportService := reports.NewService(reportRepo)

	// Typed nil must not become a non-nil interface inside the engine.
	var events settlement.EventPublisher
	if cfg.Outbox != nil {
		events = cfg.Outbox
	}

	engine := settlement.NewEngine(
		cfg.TxManager,
		saleRepo,
		stockUnitRepo,
		stockService,
		controlledService,
		ledgerService,
		rxRepo,
		cfg.Pricing,
		cfg.Numerator,
		events,
		settlement.DefaultConfig(),
	)

	// --- Handlers ---
	authHandler := handlers.NewAuthHandler(baseHandler, cfg.JWT)
	stockUnitHandler := handlers.NewStockUnitHandler(baseHandler, stockUnitService)
	customerHandler := handlers.NewCustomerHandler(baseHandler, customerService, ledgerService)
	saleHandler := handlers.NewSaleHandler(baseHandler, engine, cfg.Audit)
	receiptHandler := handlers.NewGoodsReceiptHandler(baseHandler, engine, cfg.Audit)
	rxHandler := handlers.NewPrescriptionHandler(baseHandler, rxService)
	stockRegHandler := handlers.NewStockRegisterHandler(baseHandler, stockService)
	controlledHandler := handlers.NewControlledHandler(baseHandler, controlledService, engine, cfg.Audit)
	pricingHandler := handlers.NewPricingHandler(baseHandler, cfg.Pricing)
	reportsHandler := handlers.NewReportsHandler(baseHandler, reportService)

	// API v1
	api := router.Group("/api/v1")
	{
		// Public: terminal token exchange
		api.POST("/auth/token", authHandler.Token)

		protected := api.Group("")
		protected.Use(middleware.Auth(cfg.JWT))

		if cfg.IdempotencyEnabled {
			ttl := cfg.IdempotencyTTL
			if ttl <= 0 {
				ttl = 10 * time.Minute
			}
			store := postgres.NewIdempotencyStore(cfg.Pool, cfg.TxManager, ttl)
			protected.Use(middleware.Idempotency(store))
		}

		// Catalogs
		catalogs := protected.Group("/catalog")
		{
			units := catalogs.Group("/stock-units")
			units.GET("/expiring", stockUnitHandler.Expiring)
			RegisterCatalogRoutes(units, stockUnitHandler, RolePharmacist, RoleSupervisor)

			custs := catalogs.Group("/customers")
			custs.GET("/:id/loyalty", customerHandler.LoyaltyHistory)
			custs.GET("/:id/credit", customerHandler.CreditHistory)
			custs.GET("/:id/ledger/verify", customerHandler.VerifyLedger)
			RegisterCatalogRoutes(custs, customerHandler, RoleCashier, RolePharmacist, RoleSupervisor)
		}

		// Settlement documents
		sales := protected.Group("/sales")
		{
			sales.POST("", saleHandler.Settle)
			sales.POST("/dispense", middleware.RequireRole(RolePharmacist, RoleSupervisor), saleHandler.Dispense)
			sales.POST("/:id/void", middleware.RequireRole(RoleSupervisor), saleHandler.Void)
			sales.GET("", saleHandler.List)
			sales.GET("/:id", saleHandler.Get)
		}

		receipts := protected.Group("/goods-receipts")
		{
			receipts.POST("", middleware.RequireRole(RolePharmacist, RoleSupervisor), receiptHandler.Receive)
			receipts.GET("", receiptHandler.List)
			receipts.GET("/:id", receiptHandler.Get)
		}

		rx := protected.Group("/prescriptions")
		{
			rx.POST("", middleware.RequireRole(RolePharmacist, RoleSupervisor), rxHandler.Create)
			rx.GET("", rxHandler.List)
			rx.GET("/:id", rxHandler.Get)
			rx.GET("/by-number/:number", rxHandler.GetByNumber)
			rx.POST("/:id/cancel", middleware.RequireRole(RolePharmacist, RoleSupervisor), rxHandler.Cancel)
			rx.GET("/:id/history", rxHandler.History)
		}

		// Registers (read-only, plus controlled verification)
		registers := protected.Group("/registers")
		{
			stockReg := registers.Group("/stock")
			stockReg.GET("/:stockUnitId/movements", stockRegHandler.GetMovements)
			stockReg.GET("/:stockUnitId/on-hand", stockRegHandler.GetOnHand)

			ctrlReg := registers.Group("/controlled")
			ctrlReg.POST("", middleware.RequireRole(RolePharmacist, RoleSupervisor), controlledHandler.Append)
			ctrlReg.GET("", controlledHandler.List)
			ctrlReg.GET("/:id", controlledHandler.Get)
			ctrlReg.POST("/:id/verify", middleware.RequireRole(RolePharmacist, RoleSupervisor), controlledHandler.Verify)
			ctrlReg.GET("/stock-units/:stockUnitId/chain", controlledHandler.Chain)
			ctrlReg.GET("/stock-units/:stockUnitId/balance", controlledHandler.Balance)
			ctrlReg.GET("/stock-units/:stockUnitId/reconcile", middleware.RequireRole(RolePharmacist, RoleSupervisor), controlledHandler.Reconcile)
		}

		// Pricing rules (read-only)
		protected.GET("/pricing/rules", pricingHandler.Rules)

		// Reports
		rep := protected.Group("/reports", middleware.RequireRole(RolePharmacist, RoleSupervisor))
		{
			rep.GET("/sales-summary", reportsHandler.SalesSummary)
			rep.GET("/stock-valuation", reportsHandler.StockValuation)
			rep.GET("/stock-turnover", reportsHandler.StockTurnover)
		}

		// Audit trail
		if cfg.Audit != nil {
			auditHandler := handlers.NewAuditHandler(baseHandler, cfg.Audit)
			protected.GET("/audit/:entityType/:entityId", middleware.RequireRole(RoleSupervisor), auditHandler.EntityHistory)
		}
	}

	return router
}
