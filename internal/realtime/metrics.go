package realtime

import (
	"sync"
	"time"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// window is the period rates are computed over
const window = time.Minute

// MetricsCollector collects real-time metrics
type MetricsCollector struct {
	db     *gorm.DB
	logger *pterm.Logger

	// Current metrics
	mu            sync.RWMutex
	sourceRate    float64 // new sources per second
	errorRate     float64 // new failed sources per second
	eventRate     float64 // events per second
	avgDurationMs float64 // of sources finished in the window
	activeSources int64
	totalSources  int64
	lastUpdate    time.Time
}

// RealtimeMetrics represents current real-time statistics
type RealtimeMetrics struct {
	SourceRate    float64   `json:"source_rate"` // sources/sec
	ErrorRate     float64   `json:"error_rate"`  // failed sources/sec
	EventRate     float64   `json:"event_rate"`  // events/sec
	AvgDurationMs float64   `json:"avg_duration_ms"`
	ActiveSources int64     `json:"active_sources"`
	TotalSources  int64     `json:"total_sources"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewMetricsCollector creates a new real-time metrics collector
func NewMetricsCollector(db *gorm.DB, logger *pterm.Logger) *MetricsCollector {
	return &MetricsCollector{
		db:         db,
		logger:     logger,
		lastUpdate: time.Now(),
	}
}

// Start begins collecting metrics at regular intervals
func (m *MetricsCollector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			m.collectMetrics()
		}
	}()
	m.logger.Info("Real-time metrics collector started",
		m.logger.Args("interval", interval.String()))
}

type metricsResult struct {
	TotalCount  int64   `gorm:"column:total_count"`
	NewCount    int64   `gorm:"column:new_count"`
	ErrorCount  int64   `gorm:"column:error_count"`
	ActiveCount int64   `gorm:"column:active_count"`
	AvgDuration float64 `gorm:"column:avg_duration"`
}

// query aggregates source records in one statement. Sources are dated by
// when they were first stored: tick times of a loaded capture can be
// arbitrarily old.
func (m *MetricsCollector) query(captureName string, since time.Time) (*metricsResult, int64, error) {
	var result metricsResult
	q := m.db.Table("source_records").
		Select(`
			COUNT(*) as total_count,
			COALESCE(SUM(CASE WHEN created_at > ? THEN 1 ELSE 0 END), 0) as new_count,
			COALESCE(SUM(CASE WHEN created_at > ? AND is_error = 1 THEN 1 ELSE 0 END), 0) as error_count,
			COALESCE(SUM(CASE WHEN is_inactive = 0 THEN 1 ELSE 0 END), 0) as active_count,
			COALESCE(AVG(CASE WHEN is_inactive = 1 AND updated_at > ? THEN duration_ms END), 0) as avg_duration
		`, since, since, since)
	if captureName != "" {
		q = q.Where("capture_name = ?", captureName)
	}
	if err := q.Scan(&result).Error; err != nil {
		return nil, 0, err
	}

	var events int64
	eq := m.db.Table("event_records").Where("timestamp > ?", since)
	if captureName != "" {
		eq = eq.Where("capture_name = ?", captureName)
	}
	if err := eq.Count(&events).Error; err != nil {
		return nil, 0, err
	}
	return &result, events, nil
}

// collectMetrics gathers current statistics from the database
func (m *MetricsCollector) collectMetrics() {
	now := time.Now()

	result, events, err := m.query("", now.Add(-window))
	if err != nil {
		m.logger.Warn("Failed to collect real-time metrics", m.logger.Args("error", err))
		return
	}

	sourceRate := float64(result.NewCount) / window.Seconds()
	eventRate := float64(events) / window.Seconds()

	m.mu.Lock()
	m.sourceRate = sourceRate
	m.errorRate = float64(result.ErrorCount) / window.Seconds()
	m.eventRate = eventRate
	m.avgDurationMs = result.AvgDuration
	m.activeSources = result.ActiveCount
	m.totalSources = result.TotalCount
	m.lastUpdate = now
	m.mu.Unlock()

	m.logger.Trace("Collected real-time metrics",
		m.logger.Args(
			"source_rate", sourceRate,
			"event_rate", eventRate,
			"active_sources", result.ActiveCount,
		))
}

// GetMetrics returns the current metrics snapshot
func (m *MetricsCollector) GetMetrics() *RealtimeMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &RealtimeMetrics{
		SourceRate:    m.sourceRate,
		ErrorRate:     m.errorRate,
		EventRate:     m.eventRate,
		AvgDurationMs: m.avgDurationMs,
		ActiveSources: m.activeSources,
		TotalSources:  m.totalSources,
		Timestamp:     m.lastUpdate,
	}
}

// GetMetricsForCapture returns real-time metrics of one capture, queried
// on demand. An empty name returns the global snapshot.
func (m *MetricsCollector) GetMetricsForCapture(captureName string) *RealtimeMetrics {
	if captureName == "" {
		return m.GetMetrics()
	}

	now := time.Now()
	result, events, err := m.query(captureName, now.Add(-window))
	if err != nil {
		m.logger.Warn("Failed to collect capture real-time metrics",
			m.logger.Args("error", err, "capture", captureName))
		return &RealtimeMetrics{Timestamp: now}
	}

	return &RealtimeMetrics{
		SourceRate:    float64(result.NewCount) / window.Seconds(),
		ErrorRate:     float64(result.ErrorCount) / window.Seconds(),
		EventRate:     float64(events) / window.Seconds(),
		AvgDurationMs: result.AvgDuration,
		ActiveSources: result.ActiveCount,
		TotalSources:  result.TotalCount,
		Timestamp:     now,
	}
}

// CaptureMetrics is the source rate of a single capture
type CaptureMetrics struct {
	Capture    string  `json:"capture"`
	SourceRate float64 `json:"source_rate"` // sources/sec
}

// GetPerCaptureMetrics returns the source rate of every capture that
// stored sources within the window
func (m *MetricsCollector) GetPerCaptureMetrics() []CaptureMetrics {
	since := time.Now().Add(-window)

	type captureResult struct {
		CaptureName string `gorm:"column:capture_name"`
		TotalCount  int64  `gorm:"column:total_count"`
	}

	var results []captureResult
	err := m.db.Table("source_records").
		Select("capture_name, COUNT(*) as total_count").
		Where("created_at > ?", since).
		Group("capture_name").
		Order("capture_name").
		Scan(&results).Error
	if err != nil {
		m.logger.Warn("Failed to collect per-capture metrics", m.logger.Args("error", err))
		return []CaptureMetrics{}
	}

	out := make([]CaptureMetrics, 0, len(results))
	for _, r := range results {
		out = append(out, CaptureMetrics{
			Capture:    r.CaptureName,
			SourceRate: float64(r.TotalCount) / window.Seconds(),
		})
	}
	return out
}
