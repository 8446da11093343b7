package repositories

import (
	"testing"
	"time"

	"netlynx/internal/database/models"

	"github.com/glebarez/sqlite"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Capture{}, &models.SourceRecord{}, &models.EventRecord{}))
	return db
}

func testLogger() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled)
}

func boolPtr(b bool) *bool { return &b }

func TestCaptureRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewCaptureRepository(db)

	require.NoError(t, repo.Create(&models.Capture{Name: "b", Path: "/tmp/b.json", ParserType: "netlog", CaptureID: "id-b"}))
	require.NoError(t, repo.Create(&models.Capture{Name: "a", Path: "/tmp/a.json", ParserType: "netlog", CaptureID: "id-a"}))

	all, err := repo.FindAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)

	require.NoError(t, repo.UpdateTracking("a", 512, 42, `{"type":1},`))
	require.NoError(t, repo.UpdateConstants("a", `{"logEventTypes":{}}`, 1300))

	got, err := repo.FindByName("a")
	require.NoError(t, err)
	assert.Equal(t, int64(512), got.LastPosition)
	assert.Equal(t, int64(42), got.LastInode)
	assert.Equal(t, `{"type":1},`, got.LastLineContent)
	assert.NotNil(t, got.LastReadAt)
	assert.Equal(t, `{"logEventTypes":{}}`, got.Constants)
	assert.Equal(t, int64(1300), got.TimeTickOffset)

	_, err = repo.FindByName("missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCaptureRepository_DeleteCascades(t *testing.T) {
	db := newTestDB(t)
	captures := NewCaptureRepository(db)
	sources := NewSourceRepository(db, testLogger())
	events := NewEventRepository(db, testLogger())

	require.NoError(t, captures.Create(&models.Capture{Name: "a", ParserType: "netlog", CaptureID: "id-a"}))
	require.NoError(t, sources.UpsertBatch([]*models.SourceRecord{{CaptureName: "a", SourceID: 1, SourceType: "URL_REQUEST"}}))
	require.NoError(t, events.CreateBatch([]*models.EventRecord{{CaptureName: "a", SourceID: 1, Type: "REQUEST_ALIVE", Timestamp: time.Now()}}))

	require.NoError(t, captures.Delete("a"))

	_, total, err := sources.Find(SourceFilter{CaptureName: "a"})
	require.NoError(t, err)
	assert.Zero(t, total)
	count, err := events.CountByCapture("a")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSourceRepository_UpsertRefreshesClassification(t *testing.T) {
	db := newTestDB(t)
	repo := NewSourceRepository(db, testLogger())

	require.NoError(t, repo.UpsertBatch([]*models.SourceRecord{
		{CaptureName: "a", SourceID: 1, SourceType: "URL_REQUEST", Description: "", EventCount: 1},
	}))

	rec, err := repo.FindByID("a", 1)
	require.NoError(t, err)
	rec.GeoCountry = "DE"
	require.NoError(t, repo.UpdateGeo(rec))

	require.NoError(t, repo.UpsertBatch([]*models.SourceRecord{
		{CaptureName: "a", SourceID: 1, SourceType: "URL_REQUEST", Description: "http://a.test/", IsError: true, IsInactive: true, EventCount: 4},
	}))

	records, total, err := repo.Find(SourceFilter{CaptureName: "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, "http://a.test/", records[0].Description)
	assert.True(t, records[0].IsError)
	assert.True(t, records[0].IsInactive)
	assert.Equal(t, 4, records[0].EventCount)
	assert.Equal(t, "DE", records[0].GeoCountry, "upserts keep enrichment columns")
}

func TestSourceRepository_Find(t *testing.T) {
	db := newTestDB(t)
	repo := NewSourceRepository(db, testLogger())

	require.NoError(t, repo.UpsertBatch([]*models.SourceRecord{
		{CaptureName: "a", SourceID: 3, SourceType: "URL_REQUEST", Description: "https://Example.test/x", IsInactive: true},
		{CaptureName: "a", SourceID: 1, SourceType: "URL_REQUEST", Description: "https://other.test/", IsError: true},
		{CaptureName: "a", SourceID: 2, SourceType: "HOST_RESOLVER_IMPL_REQUEST", Description: "example.test"},
		{CaptureName: "b", SourceID: 1, SourceType: "URL_REQUEST", Description: "https://example.test/"},
	}))

	tests := []struct {
		name   string
		filter SourceFilter
		want   []int64
		total  int64
	}{
		{"capture", SourceFilter{CaptureName: "a"}, []int64{1, 2, 3}, 3},
		{"type", SourceFilter{CaptureName: "a", SourceType: "URL_REQUEST"}, []int64{1, 3}, 2},
		{"active", SourceFilter{CaptureName: "a", Active: boolPtr(true)}, []int64{1, 2}, 2},
		{"inactive", SourceFilter{CaptureName: "a", Active: boolPtr(false)}, []int64{3}, 1},
		{"errors", SourceFilter{CaptureName: "a", Error: boolPtr(true)}, []int64{1}, 1},
		{"search", SourceFilter{CaptureName: "a", Search: "EXAMPLE"}, []int64{2, 3}, 2},
		{"page", SourceFilter{CaptureName: "a", Limit: 1, Offset: 1}, []int64{2}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, total, err := repo.Find(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.total, total)

			ids := make([]int64, len(records))
			for i, r := range records {
				ids[i] = r.SourceID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSourceRepository_Delete(t *testing.T) {
	db := newTestDB(t)
	repo := NewSourceRepository(db, testLogger())
	events := NewEventRepository(db, testLogger())

	require.NoError(t, repo.UpsertBatch([]*models.SourceRecord{
		{CaptureName: "a", SourceID: 1, SourceType: "URL_REQUEST"},
		{CaptureName: "a", SourceID: 2, SourceType: "URL_REQUEST"},
		{CaptureName: "b", SourceID: 1, SourceType: "URL_REQUEST"},
	}))
	require.NoError(t, events.CreateBatch([]*models.EventRecord{
		{CaptureName: "a", SourceID: 1, Seq: 0, Type: "REQUEST_ALIVE", Timestamp: time.Now()},
		{CaptureName: "a", SourceID: 2, Seq: 0, Type: "REQUEST_ALIVE", Timestamp: time.Now()},
	}))

	deleted, err := repo.DeleteByIDs("a", []int64{2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	evs, err := events.FindBySource("a", 2)
	require.NoError(t, err)
	assert.Empty(t, evs)

	deleted, err = repo.DeleteByCapture("a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err := repo.Find(SourceFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "other captures are untouched")
}

func TestSourceRepository_FindByDescriptions(t *testing.T) {
	db := newTestDB(t)
	repo := NewSourceRepository(db, testLogger())

	require.NoError(t, repo.UpsertBatch([]*models.SourceRecord{
		{CaptureName: "a", SourceID: 1, SourceType: "UDP_SOCKET", Description: "8.8.8.8:53"},
		{CaptureName: "a", SourceID: 2, SourceType: "UDP_SOCKET", Description: "1.1.1.1:53", GeoCountry: "AU"},
	}))

	records, err := repo.FindByDescriptions([]string{"8.8.8.8:53", "1.1.1.1:53"})
	require.NoError(t, err)
	require.Len(t, records, 1, "already enriched records are skipped")
	assert.Equal(t, int64(1), records[0].SourceID)
}

func TestEventRepository_CreateBatchSplits(t *testing.T) {
	db := newTestDB(t)
	repo := NewEventRepository(db, testLogger())

	const n = 5000
	batch := make([]*models.EventRecord, n)
	for i := range batch {
		batch[i] = &models.EventRecord{
			CaptureName: "a",
			SourceID:    int64(i % 2),
			Seq:         i / 2,
			Type:        "REQUEST_ALIVE",
			Ticks:       int64(i),
			Timestamp:   time.UnixMilli(int64(i)),
		}
	}
	require.NoError(t, repo.CreateBatch(batch))

	count, err := repo.CountByCapture("a")
	require.NoError(t, err)
	assert.Equal(t, int64(n), count)

	evs, err := repo.FindBySource("a", 1)
	require.NoError(t, err)
	require.Len(t, evs, n/2)
	for i, e := range evs {
		assert.Equal(t, i, e.Seq)
	}
}

func TestStatsRepository(t *testing.T) {
	db := newTestDB(t)
	sources := NewSourceRepository(db, testLogger())
	captures := NewCaptureRepository(db)
	stats := NewStatsRepository(db, testLogger())

	require.NoError(t, captures.Create(&models.Capture{Name: "a", Path: "/tmp/a.json", ParserType: "netlog", CaptureID: "id-a"}))
	require.NoError(t, sources.UpsertBatch([]*models.SourceRecord{
		{CaptureName: "a", SourceID: 1, SourceType: "URL_REQUEST", Description: "http://a.test/", IsInactive: true, DurationMs: 20, EventCount: 5},
		{CaptureName: "a", SourceID: 2, SourceType: "URL_REQUEST", Description: "http://a.test/", IsInactive: true, IsError: true, DurationMs: 40, EventCount: 3},
		{CaptureName: "a", SourceID: 3, SourceType: "SOCKET", Description: "a.test:443", EventCount: 2},
	}))

	summary, err := stats.GetSummary("a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalSources)
	assert.Equal(t, int64(1), summary.ActiveSources)
	assert.Equal(t, int64(1), summary.ErrorSources)
	assert.Equal(t, int64(10), summary.TotalEvents)
	assert.InDelta(t, 30.0, summary.AvgDurationMs, 0.001)
	assert.Equal(t, int64(2), summary.DistinctTypes)
	assert.InDelta(t, 33.33, summary.ErrorRate, 0.01)

	types, err := stats.GetSourceTypeDistribution("a")
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "URL_REQUEST", types[0].SourceType)
	assert.Equal(t, int64(2), types[0].Count)
	assert.Equal(t, int64(1), types[0].Errors)

	top, err := stats.GetTopDescriptions("a", 5, false)
	require.NoError(t, err)
	require.NotEmpty(t, top)
	assert.Equal(t, "http://a.test/", top[0].Description)
	assert.Equal(t, int64(2), top[0].Count)

	capStats, err := stats.GetCaptureStats()
	require.NoError(t, err)
	require.Len(t, capStats, 1)
	assert.Equal(t, "a", capStats[0].CaptureName)
	assert.Equal(t, int64(3), capStats[0].Sources)
}
