package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"netlynx/internal/api/handlers"
	"netlynx/internal/database"
	"netlynx/internal/database/models"
	"netlynx/internal/database/repositories"
	"netlynx/internal/ingestion"
	parsers "netlynx/internal/parser"
	"netlynx/internal/parser/chrome"
	"netlynx/internal/realtime"
	"netlynx/internal/views"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const header = `{"constants": {"logEventTypes": {"REQUEST_ALIVE": 0, "URL_REQUEST_START_JOB": 1, "INIT_PROXY_RESOLVER": 2}, "logSourceType": {"NONE": 0, "URL_REQUEST": 1, "INIT_PROXY_RESOLVER": 2}, "logEventPhase": {"PHASE_NONE": 0, "PHASE_BEGIN": 1, "PHASE_END": 2}, "netError": {}, "timeTickOffset": "1000"},`

func eventLine(id, srcType, typ, phase int, ticks int64, params string) string {
	if params != "" {
		return fmt.Sprintf(`{"params":%s,"phase":%d,"source":{"id":%d,"type":%d},"time":"%d","type":%d},`, params, phase, id, srcType, ticks, typ)
	}
	return fmt.Sprintf(`{"phase":%d,"source":{"id":%d,"type":%d},"time":"%d","type":%d},`, phase, id, srcType, ticks, typ)
}

type testEnv struct {
	router      *gin.Engine
	coordinator *ingestion.Coordinator
	sources     repositories.SourceRepository
	events      repositories.EventRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Capture{}, &models.SourceRecord{}, &models.EventRecord{}))

	store := ingestion.Store{
		Captures: repositories.NewCaptureRepository(db),
		Sources:  repositories.NewSourceRepository(db, log),
		Events:   repositories.NewEventRepository(db, log),
	}
	statsRepo := repositories.NewStatsRepository(db, log)

	reg := parsers.NewRegistry()
	chrome.Register(reg, log)

	exporter := realtime.NewExporter(nil)
	viewRegistry := views.NewRegistry(log)
	coordinator := ingestion.NewCoordinator(store, reg, nil, exporter, log, ingestion.ProcessorOptions{
		BatchSize:    100,
		BatchTimeout: 20 * time.Millisecond,
	})
	coordinator.OnProcessor(viewRegistry.Hook())
	require.NoError(t, coordinator.Start())
	t.Cleanup(coordinator.Stop)

	router := NewRouter(Handlers{
		Dashboard:   handlers.NewDashboardHandler(statsRepo, log),
		Captures:    handlers.NewCaptureHandler(coordinator, statsRepo, viewRegistry, log),
		Sources:     handlers.NewSourceHandler(store.Sources, store.Events, coordinator, log),
		Views:       handlers.NewViewsHandler(viewRegistry),
		Realtime:    handlers.NewRealtimeHandler(realtime.NewMetricsCollector(db, log), time.Second, log),
		Ingest:      handlers.NewIngestHandler(coordinator, log),
		Maintenance: handlers.NewMaintenanceHandler(database.NewCleanupService(db, log, 0, time.Hour, "02:00", false, coordinator)),
		Metrics:     exporter.Handler(),
	}, log)

	return &testEnv{router: router, coordinator: coordinator, sources: store.Sources, events: store.Events}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestLiveCaptureLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/captures", `{"name":"live1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/captures", `{"name":"live1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ingest/live1", nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(header+"\n"+`"events": [`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(strings.Join([]string{
		eventLine(1, 1, 0, 1, 0, ""),
		eventLine(1, 1, 1, 1, 2, `{"url":"http://a.test/"}`),
		eventLine(1, 1, 0, 2, 5, ""),
		eventLine(4, 2, 2, 1, 6, ""),
	}, "\n"))))

	var ack struct {
		Lines int    `json:"lines"`
		Error string `json:"error"`
	}
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, 2, ack.Lines)
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, 4, ack.Lines)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	require.Eventually(t, func() bool {
		_, total, err := env.sources.Find(repositories.SourceFilter{CaptureName: "live1"})
		if err != nil || total != 2 {
			return false
		}
		n, err := env.events.CountByCapture("live1")
		return err == nil && n == 4
	}, 5*time.Second, 20*time.Millisecond)

	rec = env.do(t, http.MethodGet, "/api/v1/captures/live1/sources?type=URL_REQUEST&active=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.Equal(t, float64(1), list["total"])

	rec = env.do(t, http.MethodGet, "/api/v1/captures/live1/sources?active=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/captures/live1/sources/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode(t, rec)
	assert.Equal(t, true, detail["tracked"])
	assert.Len(t, detail["events"], 3)
	assert.Equal(t, "http://a.test/", detail["summary"].(map[string]any)["description"])

	rec = env.do(t, http.MethodGet, "/api/v1/captures/live1/sources/1/text", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "URL_REQUEST_START_JOB")

	rec = env.do(t, http.MethodGet, "/api/v1/captures/live1/sources/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/captures/live1/proxy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), decode(t, rec)["resolver_source_id"])

	rec = env.do(t, http.MethodDelete, "/api/v1/captures/live1/sources?ids=4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/captures/live1/proxy", "")
	assert.Equal(t, "Deleted.", decode(t, rec)["resolver_log"])

	rec = env.do(t, http.MethodDelete, "/api/v1/captures/live1/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)
	p, ok := env.coordinator.Processor("live1")
	require.True(t, ok)
	assert.Zero(t, p.Tracker().Len())
	_, total, err := env.sources.Find(repositories.SourceFilter{CaptureName: "live1"})
	require.NoError(t, err)
	assert.Zero(t, total)

	rec = env.do(t, http.MethodGet, "/api/v1/captures", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["processors"], 1)

	rec = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `netlynx_events_total{capture="live1"} 4`)

	rec = env.do(t, http.MethodDelete, "/api/v1/captures/live1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/captures/live1/proxy", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestUnknownCapture(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/ingest/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/captures/missing/sources/1/text", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/captures/missing/sources/x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsRoutes(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/v1/stats/summary",
		"/api/v1/stats/captures",
		"/api/v1/stats/distribution/source-types",
		"/api/v1/stats/top/descriptions?limit=5",
		"/api/v1/realtime/metrics",
		"/api/v1/realtime/captures",
	} {
		t.Run(path, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, path, "")
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestMaintenanceRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/maintenance/cleanup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 0, body["records_deleted"])
	assert.NotEmpty(t, body["next_run"])

	rec = env.do(t, http.MethodPost, "/api/v1/maintenance/cleanup", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "retention is disabled")
}
