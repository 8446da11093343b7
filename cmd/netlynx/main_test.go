package main

import (
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, pterm.LogLevelTrace, parseLevel("TRACE"))
	assert.Equal(t, pterm.LogLevelWarn, parseLevel("warning"))
	assert.Equal(t, pterm.LogLevelInfo, parseLevel("verbose"))
}

func TestCaptureName(t *testing.T) {
	assert.Equal(t, "chrome-net-export-log", captureName("/tmp/dumps/chrome-net-export-log.json"))
	assert.Equal(t, "capture", captureName("capture"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
