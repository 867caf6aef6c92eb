package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres. Migrations run separately so tests can reuse
// them against SQLite.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the orchestration tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Job{},
		&WebhookEvent{},
		&ModerationRequest{},
		&ProcedureLock{},
	); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}
