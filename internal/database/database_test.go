package database

import (
	"path/filepath"
	"testing"
	"time"

	"netlynx/internal/database/models"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled)
}

func TestNewConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "netlynx.db")

	db, err := NewConnection(&Config{
		Path:         path,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		ConnMaxLife:  time.Hour,
	}, testLogger())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	for _, table := range []string{"captures", "source_records", "event_records"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	var journalMode string
	require.NoError(t, db.Raw("PRAGMA journal_mode").Scan(&journalMode).Error)
	assert.Equal(t, "wal", journalMode)

	assert.True(t, db.Migrator().HasIndex(&models.SourceRecord{}, "idx_sources_capture_type"))
}

type fakeCoordinator struct {
	stopped, started int
}

func (f *fakeCoordinator) Stop()                  { f.stopped++ }
func (f *fakeCoordinator) Start() error           { f.started++; return nil }
func (f *fakeCoordinator) GetProcessorCount() int { return 1 }

func TestCleanupService_CleanupBefore(t *testing.T) {
	db, err := NewConnection(&Config{
		Path:         filepath.Join(t.TempDir(), "cleanup.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, testLogger())
	require.NoError(t, err)

	now := time.Now()
	old := now.AddDate(0, 0, -40)

	require.NoError(t, db.Create([]*models.SourceRecord{
		{CaptureName: "a", SourceID: 1, SourceType: "URL_REQUEST", IsInactive: true, EndTime: old},
		{CaptureName: "a", SourceID: 2, SourceType: "URL_REQUEST", IsInactive: false, EndTime: old},
		{CaptureName: "a", SourceID: 3, SourceType: "URL_REQUEST", IsInactive: true, EndTime: now},
	}).Error)
	require.NoError(t, db.Create([]*models.EventRecord{
		{CaptureName: "a", SourceID: 1, Seq: 0, Type: "REQUEST_ALIVE", Timestamp: old},
		{CaptureName: "a", SourceID: 1, Seq: 1, Type: "URL_REQUEST_START_JOB", Timestamp: old},
		{CaptureName: "a", SourceID: 2, Type: "REQUEST_ALIVE", Timestamp: old},
		{CaptureName: "a", SourceID: 3, Type: "REQUEST_ALIVE", Timestamp: now},
	}).Error)

	coord := &fakeCoordinator{}
	svc := NewCleanupService(db, testLogger(), 30, time.Hour, "02:00", false, coord)
	svc.batchPause = 0

	deleted, err := svc.CleanupBefore(now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted, "the finished source and its two events")

	var ids []int64
	require.NoError(t, db.Model(&models.SourceRecord{}).Order("source_id").Pluck("source_id", &ids).Error)
	assert.Equal(t, []int64{2, 3}, ids, "active sources survive regardless of age")

	var events []int64
	require.NoError(t, db.Model(&models.EventRecord{}).Order("source_id").Pluck("source_id", &events).Error)
	assert.Equal(t, []int64{2, 3}, events, "old events of an active source are kept for replay")

	assert.Zero(t, coord.stopped, "plain cleanup does not pause ingestion")
}

func TestCleanupService_VacuumPausesIngestion(t *testing.T) {
	db, err := NewConnection(&Config{
		Path:         filepath.Join(t.TempDir(), "vacuum.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, testLogger())
	require.NoError(t, err)

	coord := &fakeCoordinator{}
	svc := NewCleanupService(db, testLogger(), 30, time.Hour, "02:00", true, coord)
	svc.vacuumSettle = 0
	svc.runVacuum()

	assert.Equal(t, 1, coord.stopped)
	assert.Equal(t, 1, coord.started)
}

func TestCleanupService_Schedule(t *testing.T) {
	svc := NewCleanupService(nil, testLogger(), 0, time.Hour, "bogus", false, nil)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	at := svc.parseCleanupTime(base)
	assert.Equal(t, time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC), at, "invalid times fall back to 02:00")

	assert.Error(t, svc.ManualCleanup(), "retention disabled")
	assert.False(t, svc.GetStats().NextScheduledRun.IsZero())
}
