package repositories

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

const (
	// DefaultQueryTimeout is the default timeout for analytics queries (30 seconds)
	DefaultQueryTimeout = 30 * time.Second
)

// StatsRepository provides per-capture statistics
type StatsRepository interface {
	GetSummary(captureName string) (*StatsSummary, error)
	GetSourceTypeDistribution(captureName string) ([]*SourceTypeStats, error)
	GetTopDescriptions(captureName string, limit int, errorsOnly bool) ([]*DescriptionStats, error)
	GetCaptureStats() ([]*CaptureStats, error)
}

type statsRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *gorm.DB, logger *pterm.Logger) StatsRepository {
	return &statsRepo{
		db:     db,
		logger: logger,
	}
}

// StatsSummary holds the headline numbers of a capture, or of all
// captures when no capture is given
type StatsSummary struct {
	TotalSources   int64   `json:"total_sources"`
	ActiveSources  int64   `json:"active_sources"`
	ErrorSources   int64   `json:"error_sources"`
	TotalEvents    int64   `json:"total_events"`
	AvgDurationMs  float64 `json:"avg_duration_ms"`
	ErrorRate      float64 `json:"error_rate"`
	DistinctTypes  int64   `json:"distinct_types"`
	LongestSources int64   `json:"long_running_sources"` // inactive sources that took over 10s
}

// SourceTypeStats counts sources per source type
type SourceTypeStats struct {
	SourceType string `json:"source_type"`
	Count      int64  `json:"count"`
	Errors     int64  `json:"errors"`
	Active     int64  `json:"active"`
}

// DescriptionStats counts sources sharing a description, typically a URL
// or a host name
type DescriptionStats struct {
	Description string `json:"description"`
	Count       int64  `json:"count"`
	Errors      int64  `json:"errors"`
}

// CaptureStats is the ingestion progress of a capture
type CaptureStats struct {
	CaptureName  string     `json:"capture_name"`
	Path         string     `json:"path"`
	Live         bool       `json:"live"`
	LastPosition int64      `json:"last_position"`
	LastReadAt   *time.Time `json:"last_read_at"`
	Sources      int64      `json:"sources"`
}

func (r *statsRepo) scoped(ctx context.Context, captureName string) *gorm.DB {
	q := r.db.WithContext(ctx).Table("source_records")
	if captureName != "" {
		q = q.Where("capture_name = ?", captureName)
	}
	return q
}

func (r *statsRepo) GetSummary(captureName string) (*StatsSummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultQueryTimeout)
	defer cancel()

	var result struct {
		TotalSources   int64   `gorm:"column:total_sources"`
		ActiveSources  int64   `gorm:"column:active_sources"`
		ErrorSources   int64   `gorm:"column:error_sources"`
		TotalEvents    int64   `gorm:"column:total_events"`
		AvgDurationMs  float64 `gorm:"column:avg_duration_ms"`
		DistinctTypes  int64   `gorm:"column:distinct_types"`
		LongestSources int64   `gorm:"column:long_running"`
	}

	err := r.scoped(ctx, captureName).
		Select(`
			COUNT(*) as total_sources,
			COALESCE(SUM(CASE WHEN is_inactive = 0 THEN 1 ELSE 0 END), 0) as active_sources,
			COALESCE(SUM(CASE WHEN is_error = 1 THEN 1 ELSE 0 END), 0) as error_sources,
			COALESCE(SUM(event_count), 0) as total_events,
			COALESCE(AVG(CASE WHEN is_inactive = 1 THEN duration_ms END), 0) as avg_duration_ms,
			COUNT(DISTINCT source_type) as distinct_types,
			COALESCE(SUM(CASE WHEN is_inactive = 1 AND duration_ms > 10000 THEN 1 ELSE 0 END), 0) as long_running
		`).
		Scan(&result).Error
	if err != nil {
		r.logger.WithCaller().Error("Failed to get summary", r.logger.Args("capture", captureName, "error", err))
		return nil, err
	}

	summary := &StatsSummary{
		TotalSources:   result.TotalSources,
		ActiveSources:  result.ActiveSources,
		ErrorSources:   result.ErrorSources,
		TotalEvents:    result.TotalEvents,
		AvgDurationMs:  result.AvgDurationMs,
		DistinctTypes:  result.DistinctTypes,
		LongestSources: result.LongestSources,
	}
	if summary.TotalSources > 0 {
		summary.ErrorRate = float64(summary.ErrorSources) / float64(summary.TotalSources) * 100
	}
	return summary, nil
}

func (r *statsRepo) GetSourceTypeDistribution(captureName string) ([]*SourceTypeStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultQueryTimeout)
	defer cancel()

	var stats []*SourceTypeStats
	err := r.scoped(ctx, captureName).
		Select(`
			source_type,
			COUNT(*) as count,
			SUM(CASE WHEN is_error = 1 THEN 1 ELSE 0 END) as errors,
			SUM(CASE WHEN is_inactive = 0 THEN 1 ELSE 0 END) as active
		`).
		Group("source_type").
		Order("count DESC, source_type").
		Scan(&stats).Error
	if err != nil {
		r.logger.WithCaller().Error("Failed to get source type distribution", r.logger.Args("error", err))
		return nil, err
	}
	return stats, nil
}

func (r *statsRepo) GetTopDescriptions(captureName string, limit int, errorsOnly bool) ([]*DescriptionStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultQueryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}

	q := r.scoped(ctx, captureName).Where("description != ''")
	if errorsOnly {
		q = q.Where("is_error = 1")
	}

	var stats []*DescriptionStats
	err := q.Select(`
			description,
			COUNT(*) as count,
			SUM(CASE WHEN is_error = 1 THEN 1 ELSE 0 END) as errors
		`).
		Group("description").
		Order("count DESC, description").
		Limit(limit).
		Scan(&stats).Error
	if err != nil {
		r.logger.WithCaller().Error("Failed to get top descriptions", r.logger.Args("error", err))
		return nil, err
	}
	return stats, nil
}

func (r *statsRepo) GetCaptureStats() ([]*CaptureStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultQueryTimeout)
	defer cancel()

	var stats []*CaptureStats
	err := r.db.WithContext(ctx).Table("captures c").
		Select(`
			c.name as capture_name,
			c.path,
			c.live,
			c.last_position,
			c.last_read_at,
			(SELECT COUNT(*) FROM source_records s WHERE s.capture_name = c.name) as sources
		`).
		Order("c.name").
		Scan(&stats).Error
	if err != nil {
		r.logger.WithCaller().Error("Failed to get capture stats", r.logger.Args("error", err))
		return nil, err
	}
	return stats, nil
}
