package database

import (
	"fmt"

	"netlynx/internal/database/models"

	"gorm.io/gorm"
)

// RunMigrations creates or updates the schema
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Capture{},
		&models.SourceRecord{},
		&models.EventRecord{},
	); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	return nil
}
