package repositories

import (
	"netlynx/internal/database/models"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// SQLite variable limit (default 32766 since 3.32)
const maxSQLiteVariables = 32766

// EventRepository persists raw NetLog events
type EventRepository interface {
	CreateBatch(events []*models.EventRecord) error
	FindBySource(captureName string, sourceID int64) ([]*models.EventRecord, error)
	FindBySources(captureName string, sourceIDs []int64) ([]*models.EventRecord, error)
	CountByCapture(captureName string) (int64, error)
}

type eventRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *gorm.DB, logger *pterm.Logger) EventRepository {
	return &eventRepo{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts events, splitting large batches to stay under the
// SQLite variable limit
func (r *eventRepo) CreateBatch(events []*models.EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	const columnsPerRecord = 9
	const maxRecordsPerBatch = maxSQLiteVariables / columnsPerRecord

	if len(events) <= maxRecordsPerBatch {
		return r.insertSubBatch(events)
	}

	r.logger.Debug("Splitting large batch to avoid variable limit",
		r.logger.Args("total_records", len(events), "max_per_batch", maxRecordsPerBatch))

	for i := 0; i < len(events); i += maxRecordsPerBatch {
		end := min(i+maxRecordsPerBatch, len(events))
		if err := r.insertSubBatch(events[i:end]); err != nil {
			r.logger.WithCaller().Error("Failed to insert sub-batch",
				r.logger.Args("batch_num", (i/maxRecordsPerBatch)+1, "count", end-i, "error", err))
			return err
		}
		r.logger.Trace("Inserted sub-batch",
			r.logger.Args("progress", end, "total", len(events)))
	}
	return nil
}

func (r *eventRepo) insertSubBatch(events []*models.EventRecord) error {
	tx := r.db.Begin()
	if tx.Error != nil {
		r.logger.WithCaller().Error("Failed to begin transaction", r.logger.Args("error", tx.Error))
		return tx.Error
	}

	if err := tx.Create(&events).Error; err != nil {
		tx.Rollback()
		r.logger.WithCaller().Error("Failed to insert batch",
			r.logger.Args("count", len(events), "error", err))
		return err
	}

	if err := tx.Commit().Error; err != nil {
		r.logger.WithCaller().Error("Failed to commit transaction", r.logger.Args("error", err))
		return err
	}
	return nil
}

// FindBySource returns the events of a source in arrival order
func (r *eventRepo) FindBySource(captureName string, sourceID int64) ([]*models.EventRecord, error) {
	var events []*models.EventRecord
	err := r.db.Where("capture_name = ? AND source_id = ?", captureName, sourceID).
		Order("seq").
		Find(&events).Error
	if err != nil {
		r.logger.WithCaller().Error("Failed to find events",
			r.logger.Args("capture", captureName, "source_id", sourceID, "error", err))
		return nil, err
	}
	return events, nil
}

// FindBySources returns the events of several sources, grouped by source
// and in arrival order within each
func (r *eventRepo) FindBySources(captureName string, sourceIDs []int64) ([]*models.EventRecord, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	// IN lists count against the variable limit too
	const chunk = maxSQLiteVariables - 1
	var events []*models.EventRecord
	for i := 0; i < len(sourceIDs); i += chunk {
		end := min(i+chunk, len(sourceIDs))
		var part []*models.EventRecord
		err := r.db.Where("capture_name = ? AND source_id IN ?", captureName, sourceIDs[i:end]).
			Order("source_id, seq").
			Find(&part).Error
		if err != nil {
			r.logger.WithCaller().Error("Failed to find events",
				r.logger.Args("capture", captureName, "sources", end-i, "error", err))
			return nil, err
		}
		events = append(events, part...)
	}
	return events, nil
}

func (r *eventRepo) CountByCapture(captureName string) (int64, error) {
	var count int64
	err := r.db.Model(&models.EventRecord{}).Where("capture_name = ?", captureName).Count(&count).Error
	return count, err
}
