package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// CoordinatorController pauses ingestion around maintenance that needs the
// database to itself
type CoordinatorController interface {
	Stop()
	Start() error
	GetProcessorCount() int
}

// CleanupService prunes finished sources past the retention window once a
// day and optionally vacuums afterwards
type CleanupService struct {
	db              *gorm.DB
	logger          *pterm.Logger
	retentionDays   int
	cleanupInterval time.Duration
	cleanupTime     string
	vacuumEnabled   bool
	coordinator     CoordinatorController
	stopChan        chan struct{}
	running         bool
	batchPause      time.Duration
	vacuumSettle    time.Duration
	mu              sync.Mutex // one prune at a time

	statsMu         sync.RWMutex
	lastRunTime     time.Time
	recordsDeleted  int64
	cleanupDuration time.Duration
}

// CleanupStats describes the last prune
type CleanupStats struct {
	LastRunTime      time.Time
	RecordsDeleted   int64
	CleanupDuration  time.Duration
	NextScheduledRun time.Time
}

// sourceKey identifies a source row across captures
type sourceKey struct {
	CaptureName string
	SourceID    int64
}

const pruneBatchSize = 500

func NewCleanupService(db *gorm.DB, logger *pterm.Logger, retentionDays int, cleanupInterval time.Duration, cleanupTime string, vacuumEnabled bool, coordinator CoordinatorController) *CleanupService {
	return &CleanupService{
		db:              db,
		logger:          logger,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		cleanupTime:     cleanupTime,
		vacuumEnabled:   vacuumEnabled,
		coordinator:     coordinator,
		stopChan:        make(chan struct{}),
		batchPause:      100 * time.Millisecond,
		vacuumSettle:    2 * time.Second,
	}
}

// Start schedules the daily prune. A retention of zero keeps everything.
func (s *CleanupService) Start() {
	if s.retentionDays <= 0 {
		s.logger.Info("Data retention disabled (DB_RETENTION_DAYS=0), cleanup service not started")
		return
	}

	s.running = true
	s.logger.Info("Starting database cleanup service",
		s.logger.Args(
			"retention_days", s.retentionDays,
			"cleanup_time", s.cleanupTime,
			"vacuum_enabled", s.vacuumEnabled,
		))

	go s.loop()
}

func (s *CleanupService) Stop() {
	if !s.running {
		return
	}
	s.logger.Info("Stopping database cleanup service")
	close(s.stopChan)
	s.running = false
}

// loop wakes at most every cleanupInterval so that clock jumps and a
// changed timezone are noticed before the next run is due
func (s *CleanupService) loop() {
	for {
		next := s.nextRun(time.Now())
		s.logger.Debug("Next cleanup scheduled",
			s.logger.Args("next_run", next.Format("2006-01-02 15:04:05"), "in", time.Until(next).Round(time.Minute)))

		timer := time.NewTimer(min(time.Until(next), s.cleanupInterval))
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
		}

		if !time.Now().Before(next.Add(-time.Minute)) {
			s.runCleanup()
		}
	}
}

// nextRun is the first cleanup time after now
func (s *CleanupService) nextRun(now time.Time) time.Time {
	at := s.parseCleanupTime(now)
	if now.After(at) {
		at = at.Add(24 * time.Hour)
	}
	return at
}

// parseCleanupTime places the configured HH:MM on the day of baseTime
func (s *CleanupService) parseCleanupTime(baseTime time.Time) time.Time {
	hm, err := time.Parse("15:04", s.cleanupTime)
	if err != nil {
		s.logger.Warn("Invalid cleanup time format, using 02:00",
			s.logger.Args("configured", s.cleanupTime, "error", err))
		hm = time.Date(0, 1, 1, 2, 0, 0, 0, time.UTC)
	}
	return time.Date(baseTime.Year(), baseTime.Month(), baseTime.Day(),
		hm.Hour(), hm.Minute(), 0, 0, baseTime.Location())
}

func (s *CleanupService) runCleanup() {
	started := time.Now()
	cutoff := started.AddDate(0, 0, -s.retentionDays)
	s.logger.Info("Starting scheduled database cleanup",
		s.logger.Args("retention_days", s.retentionDays, "cutoff", cutoff.Format("2006-01-02")))

	deleted, err := s.CleanupBefore(cutoff)
	if err != nil {
		return
	}
	took := time.Since(started)

	s.statsMu.Lock()
	s.lastRunTime = started
	s.recordsDeleted = deleted
	s.cleanupDuration = took
	s.statsMu.Unlock()

	s.logger.Info("Cleanup completed",
		s.logger.Args("records_deleted", deleted, "duration", took.Round(time.Second)))

	if s.vacuumEnabled && deleted > 0 {
		s.runVacuum()
	}
}

// CleanupBefore deletes the sources that finished before cutoff together
// with their events, and returns the number of rows removed. Active
// sources keep all their events: a restarted processor replays them.
func (s *CleanupService) CleanupBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for {
		n, err := s.pruneBatch(cutoff)
		total += n
		if err != nil {
			s.logger.WithCaller().Error("Failed to prune finished sources",
				s.logger.Args("error", err, "cutoff", cutoff.Format("2006-01-02"), "deleted", total))
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		s.logger.Trace("Pruned batch", s.logger.Args("rows", n, "total", total))
		time.Sleep(s.batchPause)
	}
}

// pruneBatch removes up to pruneBatchSize finished sources in one
// transaction
func (s *CleanupService) pruneBatch(cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var keys []sourceKey
		if err := tx.Table("source_records").
			Select("capture_name, source_id").
			Where("is_inactive = ? AND end_time < ?", true, cutoff).
			Limit(pruneBatchSize).
			Scan(&keys).Error; err != nil {
			return err
		}

		for _, k := range keys {
			res := tx.Exec("DELETE FROM event_records WHERE capture_name = ? AND source_id = ?", k.CaptureName, k.SourceID)
			if res.Error != nil {
				return fmt.Errorf("delete events of %s/%d: %w", k.CaptureName, k.SourceID, res.Error)
			}
			deleted += res.RowsAffected

			res = tx.Exec("DELETE FROM source_records WHERE capture_name = ? AND source_id = ?", k.CaptureName, k.SourceID)
			if res.Error != nil {
				return fmt.Errorf("delete source %s/%d: %w", k.CaptureName, k.SourceID, res.Error)
			}
			deleted += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// runVacuum reclaims space. Processors are stopped for the duration so
// that VACUUM does not fail on a locked database.
func (s *CleanupService) runVacuum() {
	started := time.Now()
	s.logger.Info("Starting VACUUM maintenance window")

	paused := false
	if s.coordinator != nil && s.coordinator.GetProcessorCount() > 0 {
		s.logger.Info("Pausing ingestion for maintenance",
			s.logger.Args("active_processors", s.coordinator.GetProcessorCount()))
		s.coordinator.Stop()
		paused = true
		time.Sleep(s.vacuumSettle)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	err := s.db.WithContext(ctx).Exec("VACUUM").Error
	if err != nil {
		s.logger.WithCaller().Error("Failed to run VACUUM", s.logger.Args("error", err))
	}

	if paused {
		if err := s.coordinator.Start(); err != nil {
			s.logger.WithCaller().Error("Failed to resume ingestion after VACUUM",
				s.logger.Args("error", err))
			return
		}
		s.logger.Info("Ingestion resumed",
			s.logger.Args("active_processors", s.coordinator.GetProcessorCount()))
	}

	if err == nil {
		s.logger.Info("VACUUM maintenance completed",
			s.logger.Args("duration", time.Since(started).Round(time.Second)))
	}
}

func (s *CleanupService) GetStats() *CleanupStats {
	next := s.nextRun(time.Now())

	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return &CleanupStats{
		LastRunTime:      s.lastRunTime,
		RecordsDeleted:   s.recordsDeleted,
		CleanupDuration:  s.cleanupDuration,
		NextScheduledRun: next,
	}
}

// ManualCleanup runs a prune now in the background
func (s *CleanupService) ManualCleanup() error {
	if s.retentionDays <= 0 {
		return fmt.Errorf("retention disabled (DB_RETENTION_DAYS=0)")
	}
	s.logger.Info("Manual cleanup triggered")
	go s.runCleanup()
	return nil
}
