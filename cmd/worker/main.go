package main

import (
	"context"
	"log"
	"time"

	"tradeflow/internal/engine/billing"
	"tradeflow/internal/pkg/logger"
	"tradeflow/internal/platform/audit"
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

	globalDB, err := database.NewGlobalDB(cfg.Database.Global)
	if err != nil {
		log.Fatalf("Failed to connect to global DB: %v", err)
	}
	defer globalDB.Close()

	tenantDBPool := database.NewTenantDBPool(cfg.Database.Tenant)
	defer tenantDBPool.CloseAll()

	orgRepo := repositories.NewOrganizationRepository(globalDB)
	profileRepo := repositories.NewProfileRepository(globalDB)
	subRepo := repositories.NewSubscriptionRepository(globalDB)
	auditLog := audit.NewLogger(globalDB)
	stripeClient := billing.NewStripeClient(cfg.Stripe)
	repairer := billing.NewRepairer(stripeClient, orgRepo, profileRepo, subRepo, auditLog, tenantDBPool)

	log.Println("Starting background workers...")

	runRepairWorker(repairer, cfg.Worker)
}

// runRepairWorker runs the drift repair pass once a day at the configured
// UTC hour.
func runRepairWorker(repairer *billing.Repairer, cfg config.WorkerConfig) {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), cfg.RepairHourUTC, 0, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		duration := next.Sub(now)

		log.Printf("Repair worker sleeping for %v", duration)
		time.Sleep(duration)

		log.Println("Running drift repair pass...")
		report, err := repairer.Run(context.Background(), cfg.RepairDryRun)
		if err != nil {
			log.Printf("Repair pass failed: %v", err)
			continue
		}
		log.Printf("Repair pass done: scanned=%d linked=%d deleted=%d errors=%d",
			report.Scanned, report.Linked, report.Deleted, report.Errors)
	}
}
