package applog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogrus_JSONFormatIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogrus(&buf, "info", "json")

	log.Info("task started", "id", "task-1", "priority", "high")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "task started", decoded["msg"])
	assert.Equal(t, "task-1", decoded["id"])
	assert.Equal(t, "high", decoded["priority"])
}

func TestNewLogrus_LevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogrus(&buf, "warn", "json")

	log.Debug("should be dropped")
	log.Info("should also be dropped")
	log.Warn("should appear")

	assert.NotContains(t, buf.String(), "should be dropped")
	assert.Contains(t, buf.String(), "should appear")
}

func TestNewLogrus_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogrus(&buf, "not-a-level", "json")

	log.Info("visible")
	log.Debug("hidden")

	assert.Contains(t, buf.String(), "visible")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewLogrus_TextFormatWritesPlainLines(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogrus(&buf, "info", "text")

	log.Error("something broke", "reason", "timeout")

	line := buf.String()
	assert.True(t, strings.Contains(line, "something broke"))
	assert.True(t, strings.Contains(line, "reason=timeout"))
}

func TestDiscard_NeverPanics(t *testing.T) {
	var log Logger = Discard{}
	log.Debug("x")
	log.Info("x", "k", "v")
	log.Warn("x")
	log.Error("x")
}
