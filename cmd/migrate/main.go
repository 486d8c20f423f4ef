package main

import (
	"log"
	"os"

	"interview-copilot-be/internal/model"
	"interview-copilot-be/internal/repository/contract"
	"interview-copilot-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(dsn, true)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Step 1: Setting up Extensions...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warn: Failed to create pgcrypto extension: %v. Continuing...", err)
	}

	// 3. AutoMigrate copilot tables
	models := []interface{}{
		&model.CopilotSession{},
		&model.CopilotEvent{},
		&model.CopilotSummary{},
		&model.CopilotUsageRecord{},
		&model.CopilotQuotaOverride{},
	}
	log.Printf("Step 2: Running AutoMigrate for %d Tables...", len(models))
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 4. Post-Migration: constraints GORM tags cannot express
	log.Println("Step 3: Creating partial indexes...")
	postMigrationSQL := []string{
		// at most one active session per user
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + contract.ActiveSessionIndex + `
		 ON copilot_sessions (user_id) WHERE status = 'active';`,
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Fatalf("Error: post-migration SQL failed: %v", err)
		}
	}

	log.Println("✅ Success: Database migration completed successfully via GORM.")
}
