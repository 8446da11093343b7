package repositories

import (
	"strings"

	"netlynx/internal/database/models"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SourceFilter narrows down source listings
type SourceFilter struct {
	CaptureName string
	SourceType  string
	Active      *bool
	Error       *bool
	Search      string // substring of the description, case-insensitive
	Limit       int
	Offset      int
}

// SourceRepository persists source classifications
type SourceRepository interface {
	UpsertBatch(records []*models.SourceRecord) error
	Find(filter SourceFilter) ([]*models.SourceRecord, int64, error)
	FindByID(captureName string, sourceID int64) (*models.SourceRecord, error)
	FindByDescriptions(descriptions []string) ([]*models.SourceRecord, error)
	UpdateGeo(record *models.SourceRecord) error
	DeleteByIDs(captureName string, sourceIDs []int64) (int64, error)
	DeleteByCapture(captureName string) (int64, error)
	IDRange(captureName string) (lowest int64, highest int64, err error)
}

type sourceRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db *gorm.DB, logger *pterm.Logger) SourceRepository {
	return &sourceRepo{
		db:     db,
		logger: logger,
	}
}

// Columns refreshed when a source is seen again. Geo columns are filled
// by the enricher and are left alone.
var upsertColumns = []string{
	"source_type", "description", "is_error", "is_inactive",
	"start_time", "end_time", "duration_ms", "event_count",
	"max_previous_source_id", "updated_at",
}

// UpsertBatch inserts or refreshes records keyed by capture and source id
func (r *sourceRepo) UpsertBatch(records []*models.SourceRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Same variable limit as event inserts, SourceRecord has ~18 columns
	const maxRecordsPerBatch = maxSQLiteVariables / 18

	for i := 0; i < len(records); i += maxRecordsPerBatch {
		end := min(i+maxRecordsPerBatch, len(records))
		err := r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "capture_name"}, {Name: "source_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(records[i:end]).Error
		if err != nil {
			r.logger.WithCaller().Error("Failed to upsert source records",
				r.logger.Args("count", end-i, "error", err))
			return err
		}
	}

	r.logger.Trace("Upserted source records", r.logger.Args("count", len(records)))
	return nil
}

// Find returns a page of matching records ordered by source id, and the
// total number of matches.
func (r *sourceRepo) Find(filter SourceFilter) ([]*models.SourceRecord, int64, error) {
	query := r.db.Model(&models.SourceRecord{})

	if filter.CaptureName != "" {
		query = query.Where("capture_name = ?", filter.CaptureName)
	}
	if filter.SourceType != "" {
		query = query.Where("source_type = ?", filter.SourceType)
	}
	if filter.Active != nil {
		query = query.Where("is_inactive = ?", !*filter.Active)
	}
	if filter.Error != nil {
		query = query.Where("is_error = ?", *filter.Error)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(description) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.logger.WithCaller().Error("Failed to count source records", r.logger.Args("error", err))
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []*models.SourceRecord
	if err := query.Order("capture_name, source_id").Find(&records).Error; err != nil {
		r.logger.WithCaller().Error("Failed to find source records", r.logger.Args("error", err))
		return nil, 0, err
	}

	r.logger.Trace("Found source records",
		r.logger.Args("count", len(records), "total", total, "capture", filter.CaptureName))
	return records, total, nil
}

// FindByID returns a single source record
func (r *sourceRepo) FindByID(captureName string, sourceID int64) (*models.SourceRecord, error) {
	var record models.SourceRecord
	err := r.db.Where("capture_name = ? AND source_id = ?", captureName, sourceID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByDescriptions returns records without geo data whose description
// is one of the given values
func (r *sourceRepo) FindByDescriptions(descriptions []string) ([]*models.SourceRecord, error) {
	if len(descriptions) == 0 {
		return nil, nil
	}
	var records []*models.SourceRecord
	err := r.db.Where("description IN ? AND geo_country = ''", descriptions).Find(&records).Error
	return records, err
}

// UpdateGeo stores the enrichment columns of record
func (r *sourceRepo) UpdateGeo(record *models.SourceRecord) error {
	return r.db.Model(&models.SourceRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"geo_country": record.GeoCountry,
			"geo_city":    record.GeoCity,
			"asn":         record.ASN,
			"asn_org":     record.ASNOrg,
		}).Error
}

// DeleteByIDs removes the given sources of a capture and their events
func (r *sourceRepo) DeleteByIDs(captureName string, sourceIDs []int64) (int64, error) {
	if len(sourceIDs) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("capture_name = ? AND source_id IN ?", captureName, sourceIDs).
			Delete(&models.EventRecord{}).Error; err != nil {
			return err
		}
		result := tx.Where("capture_name = ? AND source_id IN ?", captureName, sourceIDs).
			Delete(&models.SourceRecord{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

// DeleteByCapture removes every source of a capture and their events
func (r *sourceRepo) DeleteByCapture(captureName string) (int64, error) {
	var deleted int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("capture_name = ?", captureName).Delete(&models.EventRecord{}).Error; err != nil {
			return err
		}
		result := tx.Where("capture_name = ?", captureName).Delete(&models.SourceRecord{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err == nil {
		r.logger.Debug("Deleted capture sources",
			r.logger.Args("capture", captureName, "deleted", deleted))
	}
	return deleted, err
}

// IDRange returns the smallest and largest stored source id of a capture,
// both 0 when it has none
func (r *sourceRepo) IDRange(captureName string) (int64, int64, error) {
	var result struct {
		Lowest  int64
		Highest int64
	}
	err := r.db.Model(&models.SourceRecord{}).
		Select("COALESCE(MIN(source_id), 0) as lowest, COALESCE(MAX(source_id), 0) as highest").
		Where("capture_name = ?", captureName).
		Scan(&result).Error
	return result.Lowest, result.Highest, err
}
