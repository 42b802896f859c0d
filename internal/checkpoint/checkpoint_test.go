package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/re-cinq/aidp-loop/internal/clock"
)

func TestMetrics_DeriveStatus(t *testing.T) {
	healthy := Metrics{TestCoverage: 90, CodeQuality: 85, PRDTaskProgress: 75}
	assert.Equal(t, StatusHealthy, healthy.deriveStatus())

	needsAttention := Metrics{TestCoverage: 10, CodeQuality: 20, PRDTaskProgress: 10}
	assert.Equal(t, StatusNeedsAttention, needsAttention.deriveStatus())

	warning := Metrics{TestCoverage: 60, CodeQuality: 65, PRDTaskProgress: 50}
	assert.Equal(t, StatusWarning, warning.deriveStatus())
}

func TestRecorder_RecordCheckpoint_WritesSnapshotAndHistory(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))

	snap, err := r.RecordCheckpoint("run_tests", 3, Metrics{TestCoverage: 90, CodeQuality: 85, PRDTaskProgress: 75})

	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, snap.Status)
	assert.Equal(t, "2026-01-01T12:00:00Z", snap.Timestamp)

	_, err = os.Stat(filepath.Join(dir, ".aidp", "checkpoint.yml"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, ".aidp", "checkpoint_history.jsonl"))
	assert.NoError(t, err)
}

func TestRecorder_ProgressSummary_EmptyHistory(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, clock.NewFake(time.Now()))

	summary, err := r.ProgressSummary()

	require.NoError(t, err)
	assert.Empty(t, summary.Current.StepName)
	assert.Nil(t, summary.Previous)
}

func TestRecorder_ProgressSummary_ComputesTrendsBetweenLastTwoSnapshots(t *testing.T) {
	dir := t.TempDir()
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := New(dir, c)

	_, err := r.RecordCheckpoint("step1", 1, Metrics{TestCoverage: 40, CodeQuality: 40, PRDTaskProgress: 20})
	require.NoError(t, err)
	c.Advance(time.Hour)
	_, err = r.RecordCheckpoint("step2", 2, Metrics{TestCoverage: 60, CodeQuality: 30, PRDTaskProgress: 20})
	require.NoError(t, err)

	summary, err := r.ProgressSummary()

	require.NoError(t, err)
	require.NotNil(t, summary.Previous)
	assert.Equal(t, "step2", summary.Current.StepName)
	assert.Equal(t, "up", summary.Trends["testCoverage"].Direction)
	assert.Equal(t, "down", summary.Trends["codeQuality"].Direction)
	assert.Equal(t, "stable", summary.Trends["prdTaskProgress"].Direction)
}

func TestRecorder_ReadHistory_SkipsMalformedLinesWithoutFailing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".aidp"), 0o755))
	historyPath := filepath.Join(dir, ".aidp", "checkpoint_history.jsonl")
	require.NoError(t, os.WriteFile(historyPath, []byte("{not json}\n{\"stepName\":\"ok\"}\n"), 0o644))

	r := New(dir, clock.NewFake(time.Now()))
	summary, err := r.ProgressSummary()

	require.NoError(t, err)
	assert.Equal(t, "ok", summary.Current.StepName)
}
