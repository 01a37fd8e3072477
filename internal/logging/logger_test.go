package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithFormat_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat(&buf, slog.LevelInfo, FormatJSON)
	log.Info("summarize failed", "error", errors.New("upstream 500"))

	assert.Contains(t, buf.String(), `"err":"upstream 500"`)
	assert.NotContains(t, buf.String(), `"error"`)
}

func TestNewWithFormat_Level(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat(&buf, slog.LevelWarn, FormatText)
	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}
