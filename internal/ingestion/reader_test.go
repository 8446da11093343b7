package ingestion

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(content)
	require.NoError(t, err)
}

func TestIncrementalReader_MissingFile(t *testing.T) {
	r := NewIncrementalReader(filepath.Join(t.TempDir(), "missing.json"), 0, 0, "", testLogger())
	lines, pos, _, _, err := r.ReadBatch(10)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Zero(t, pos)
}

func TestIncrementalReader_LeavesPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.json")
	writeFile(t, path, "line1\nline2\npart")

	r := NewIncrementalReader(path, 0, 0, "", testLogger())
	lines, pos, inode, last, err := r.ReadBatch(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"line1", "line2"}, lines)
	assert.Equal(t, int64(len("line1\nline2\n")), pos)
	assert.Equal(t, "line2", last)
	r.UpdatePosition(pos, inode, last)

	appendFile(t, path, "ial\n")
	lines, pos, _, _, err = r.ReadBatch(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, lines)
	assert.Equal(t, int64(len("line1\nline2\npartial\n")), pos)
}

func TestIncrementalReader_BatchLimitKeepsPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.json")
	writeFile(t, path, "a\r\n\nb\nc\n")

	r := NewIncrementalReader(path, 0, 0, "", testLogger())
	lines, pos, inode, last, err := r.ReadBatch(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)
	r.UpdatePosition(pos, inode, last)

	lines, _, _, _, err = r.ReadBatch(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, lines)
}

func TestIncrementalReader_Truncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.json")
	writeFile(t, path, "first session line one\nfirst session line two\n")

	r := NewIncrementalReader(path, 0, 0, "", testLogger())
	lines, pos, inode, last, err := r.ReadBatch(10)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	r.UpdatePosition(pos, inode, last)

	writeFile(t, path, "second\n")
	lines, pos, _, _, err = r.ReadBatch(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, lines)
	assert.Equal(t, int64(len("second\n")), pos)
}

func TestIncrementalReader_LongLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.json")
	long := strings.Repeat("x", 300*1024)
	writeFile(t, path, long+"\nshort\n")

	r := NewIncrementalReader(path, 0, 0, "", testLogger())
	lines, _, _, last, err := r.ReadBatch(10)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], len(long))
	assert.Equal(t, "short", last)
}

func TestGetTail(t *testing.T) {
	assert.Equal(t, "", getTail("", 5))
	assert.Equal(t, "abc", getTail("abc \n", 5))
	assert.Equal(t, "cdef", getTail("abcdef", 4))
}
