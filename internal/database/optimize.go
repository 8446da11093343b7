package database

import (
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// OptimizeDatabase applies additional optimizations after initial migrations
// This includes creating performance indexes and verifying SQLite settings
func OptimizeDatabase(db *gorm.DB, logger *pterm.Logger) error {
	logger.Debug("Applying database optimizations...")

	// Verify WAL mode is enabled (debug level - only show if there's a problem)
	var journalMode string
	if err := db.Raw("PRAGMA journal_mode").Scan(&journalMode).Error; err != nil {
		logger.Warn("Failed to check journal mode", logger.Args("error", err))
	} else if journalMode != "wal" {
		logger.Warn("Database not in WAL mode", logger.Args("mode", journalMode))
	} else {
		logger.Trace("Database journal mode verified", logger.Args("mode", journalMode))
	}

	// Verify page size (trace level - not critical)
	var pageSize int
	if err := db.Raw("PRAGMA page_size").Scan(&pageSize).Error; err != nil {
		logger.Debug("Failed to check page size", logger.Args("error", err))
	} else {
		logger.Trace("Database page size", logger.Args("bytes", pageSize))
	}

	// IF NOT EXISTS makes this idempotent and fast on subsequent runs
	indexes := []string{
		// Source listing per capture, filtered by type
		`CREATE INDEX IF NOT EXISTS idx_sources_capture_type
		 ON source_records(capture_name, source_type, source_id)`,

		// Error sources only
		`CREATE INDEX IF NOT EXISTS idx_sources_errors
		 ON source_records(capture_name, source_id)
		 WHERE is_error = 1`,

		// Active sources only
		`CREATE INDEX IF NOT EXISTS idx_sources_active
		 ON source_records(capture_name, source_id)
		 WHERE is_inactive = 0`,

		// Top descriptions
		`CREATE INDEX IF NOT EXISTS idx_sources_description
		 ON source_records(capture_name, description)`,

		// Retention cleanup
		`CREATE INDEX IF NOT EXISTS idx_sources_end_time
		 ON source_records(end_time)
		 WHERE is_inactive = 1`,
	}

	indexCount := 0
	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			logger.Warn("Failed to create index", logger.Args("error", err))
			return err
		}
		indexCount++
	}

	logger.Debug("Performance indexes verified", logger.Args("count", indexCount))

	// Analyze tables for query optimizer (only log if it fails)
	if err := db.Exec("ANALYZE").Error; err != nil {
		logger.Warn("Failed to analyze database", logger.Args("error", err))
	} else {
		logger.Trace("Database statistics analyzed")
	}

	logger.Debug("Database optimizations completed")
	return nil
}
