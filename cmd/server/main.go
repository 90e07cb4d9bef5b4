package main

import (
	"fmt"
	"log"
	"net/http"

	"tradeflow/internal/api"
	"tradeflow/internal/api/handlers"
	"tradeflow/internal/api/middleware"
	"tradeflow/internal/engine/billing"
	"tradeflow/internal/engine/jobs"
	"tradeflow/internal/engine/reporting"
	"tradeflow/internal/pkg/logger"
	"tradeflow/internal/platform/audit"
	"tradeflow/internal/platform/auth"
	"tradeflow/internal/platform/config"
	"tradeflow/internal/platform/database"
	"tradeflow/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	// Database connections
	globalDB, err := database.NewGlobalDB(cfg.Database.Global)
	if err != nil {
		log.Fatalf("Failed to connect to global DB: %v", err)
	}
	defer globalDB.Close()

	globalDBWrapper := database.NewGlobalDBWrapper(globalDB)

	tenantDBPool := database.NewTenantDBPool(cfg.Database.Tenant)
	defer tenantDBPool.CloseAll()

	// Repositories
	orgRepo := repositories.NewOrganizationRepository(globalDB)
	profileRepo := repositories.NewProfileRepository(globalDB)
	subRepo := repositories.NewSubscriptionRepository(globalDB)
	licenseRepo := repositories.NewLicenseRepository(globalDB)
	apiKeyRepo := repositories.NewAPIKeyRepository(globalDB)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	auditLog := audit.NewLogger(globalDB)
	stripeClient := billing.NewStripeClient(cfg.Stripe)
	priceBook := billing.NewPriceBook(cfg.Stripe)
	reconciler := billing.NewReconciler(stripeClient, orgRepo, profileRepo, subRepo, licenseRepo, auditLog, priceBook, cfg.Database.Tenant.BasePath)
	repairer := billing.NewRepairer(stripeClient, orgRepo, profileRepo, subRepo, auditLog, tenantDBPool)
	jobService := jobs.NewService(orgRepo)
	reportingService := reporting.NewService(reporting.NewRepository(globalDB), subRepo)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(cfg.Stripe.WebhookSecret, reconciler)
	billingHandler := handlers.NewBillingHandler(reconciler, stripeClient, priceBook, subRepo, licenseRepo, reportingService, auditLog, cfg.Stripe.PortalReturnURL)
	adminHandler := handlers.NewAdminHandler(cfg.Admin.RepairKey, repairer, tokenSvc)
	orgHandler := handlers.NewOrgHandler(orgRepo, profileRepo, auditLog)
	licenseHandler := handlers.NewLicenseHandler(licenseRepo, profileRepo, auditLog)
	jobHandler := handlers.NewJobHandler(jobService, cfg.Domains.AppDomain)
	apiKeyHandler := handlers.NewAPIKeyHandler(apiKeyRepo)
	auditHandler := handlers.NewAuditHandler(auditLog)
	healthHandler := handlers.NewHealthHandler(globalDBWrapper)

	// Middleware
	middleware.ConfigureRateLimits(cfg.RateLimit)
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc, apiKeyRepo, profileRepo)
	tenantMiddleware := middleware.NewTenantMiddleware(orgRepo, tenantDBPool)

	deps := &api.Dependencies{
		WebhookHandler:   webhookHandler,
		BillingHandler:   billingHandler,
		AdminHandler:     adminHandler,
		OrgHandler:       orgHandler,
		LicenseHandler:   licenseHandler,
		JobHandler:       jobHandler,
		APIKeyHandler:    apiKeyHandler,
		AuditHandler:     auditHandler,
		HealthHandler:    healthHandler,
		AuthMiddleware:   authMiddleware,
		TenantMiddleware: tenantMiddleware,
	}
	router := api.NewRouter(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
