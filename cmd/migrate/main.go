package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"tradeflow/internal/platform/config"
	"tradeflow/internal/platform/database"
)

func main() {
	target := flag.String("target", "global", "Migration target: global or tenant")
	orgID := flag.String("org", "", "Organization ID (required for tenant migrations)")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch *target {
	case "global":
		db, err := database.NewGlobalDB(cfg.Database.Global)
		if err != nil {
			log.Fatalf("Failed to connect to global DB: %v", err)
		}
		defer db.Close()
		if err := runMigrations(db, "migrations/global"); err != nil {
			log.Fatal(err)
		}
	case "tenant":
		if *orgID == "" {
			log.Fatal("--org flag required for tenant migrations")
		}

		globalDB, err := database.NewGlobalDB(cfg.Database.Global)
		if err != nil {
			log.Fatalf("Failed to connect to global DB: %v", err)
		}

		var dbFilePath string
		err = globalDB.QueryRow("SELECT db_file_path FROM organizations WHERE id = ?", *orgID).Scan(&dbFilePath)
		globalDB.Close()
		if err != nil {
			log.Fatalf("Failed to get organization DB path: %v", err)
		}

		pool := database.NewTenantDBPool(cfg.Database.Tenant)
		db, err := pool.Get(*orgID, dbFilePath)
		if err != nil {
			log.Fatalf("Failed to connect to tenant DB: %v", err)
		}
		defer pool.CloseAll()

		if err := runMigrations(db, "migrations/tenant"); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatal("Invalid target: must be 'global' or 'tenant'")
	}

	fmt.Println("Migration completed successfully")
}

func runMigrations(db *sql.DB, dir string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migration directory: %w", err)
	}

	for _, file := range files {
		if filepath.Ext(file.Name()) != ".sql" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file.Name(), err)
		}

		log.Printf("Applying migration: %s", file.Name())
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", file.Name(), err)
		}
	}
	return nil
}
