package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"netlynx/internal/database/models"
	"netlynx/internal/database/repositories"
	"netlynx/internal/parser/chrome"

	"github.com/glebarez/sqlite"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const header = `{"constants":{"logEventTypes":{"REQUEST_ALIVE":0},"logSourceType":{"NONE":0},"logEventPhase":{"PHASE_NONE":0},"timeTickOffset":"1000"},` + "\n"

func testLogger() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNetLogDetector_ConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "chrome.json", header)
	writeFile(t, dir, "other.json", header)

	captures, err := NewNetLogDetector(path, dir, true, testLogger()).Detect()
	require.NoError(t, err)
	require.Len(t, captures, 1)
	assert.Equal(t, "netlog-chrome", captures[0].Name)
	assert.Equal(t, path, captures[0].Path)
	assert.Equal(t, chrome.ParserType, captures[0].ParserType)
}

func TestNetLogDetector_AutoDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", header)
	writeFile(t, dir, "a.json", header)
	writeFile(t, dir, "empty.json", "")
	writeFile(t, dir, "access.json", `{"level":"info","msg":"GET /"}`+"\n")
	writeFile(t, dir, "notes.txt", header)

	captures, err := NewNetLogDetector(filepath.Join(dir, "missing.json"), dir, true, testLogger()).Detect()
	require.NoError(t, err)
	require.Len(t, captures, 2)
	assert.Equal(t, "netlog-a", captures[0].Name)
	assert.Equal(t, "netlog-b", captures[1].Name)
}

func TestNetLogDetector_Disabled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", header)

	captures, err := NewNetLogDetector("", dir, false, testLogger()).Detect()
	require.NoError(t, err)
	assert.Empty(t, captures)
}

func TestEngine_RegistersNewCapturesOnce(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Capture{}))

	dir := t.TempDir()
	writeFile(t, dir, "a.json", header)

	repo := repositories.NewCaptureRepository(db)
	engine := NewEngine(repo, testLogger(), NewNetLogDetector("", dir, true, testLogger()))

	created, err := engine.Run()
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.NotEmpty(t, created[0].CaptureID)

	created, err = engine.Run()
	require.NoError(t, err)
	assert.Empty(t, created)

	all, err := repo.FindAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
