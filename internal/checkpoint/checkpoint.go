// Package checkpoint records periodic snapshots of progress metrics,
// keeps a JSONL history, and computes trends between the last two
// snapshots.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
	"github.com/re-cinq/aidp-loop/internal/clock"
)

// Status is the closed enum a Checkpoint's health status belongs to.
type Status string

const (
	StatusHealthy        Status = "healthy"
	StatusWarning        Status = "warning"
	StatusNeedsAttention Status = "needs_attention"
)

// Metrics is the quantitative snapshot recorded each checkpoint.
type Metrics struct {
	LinesOfCode     int     `json:"linesOfCode" yaml:"linesOfCode"`
	FileCount       int     `json:"fileCount" yaml:"fileCount"`
	TestCoverage    float64 `json:"testCoverage" yaml:"testCoverage"`
	CodeQuality     float64 `json:"codeQuality" yaml:"codeQuality"`
	PRDTaskProgress float64 `json:"prdTaskProgress" yaml:"prdTaskProgress"`
}

func (m Metrics) deriveStatus() Status {
	switch {
	case m.TestCoverage >= 80 && m.CodeQuality >= 80 && m.PRDTaskProgress >= 70:
		return StatusHealthy
	case m.TestCoverage < 50 && m.CodeQuality < 60 && m.PRDTaskProgress < 40:
		return StatusNeedsAttention
	default:
		return StatusWarning
	}
}

// Snapshot is one recorded checkpoint.
type Snapshot struct {
	StepName  string    `json:"stepName" yaml:"stepName"`
	Iteration int       `json:"iteration" yaml:"iteration"`
	Timestamp string    `json:"timestamp" yaml:"timestamp"`
	Metrics   Metrics   `json:"metrics" yaml:"metrics"`
	Status    Status    `json:"status" yaml:"status"`
}

// Trend describes the direction and magnitude of change in one metric
// between the last two snapshots.
type Trend struct {
	Direction    string  `json:"direction"`
	Change       float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// Summary is the shape returned by ProgressSummary.
type Summary struct {
	Current      Snapshot
	Previous     *Snapshot
	Trends       map[string]Trend
	QualityScore float64
}

// Recorder owns <project>/.aidp/checkpoint.yml and
// checkpoint_history.jsonl.
type Recorder struct {
	projectDir string
	clock      clock.Clock
}

// New builds a Recorder rooted at projectDir.
func New(projectDir string, c clock.Clock) *Recorder {
	if c == nil {
		c = clock.Real{}
	}
	return &Recorder{projectDir: projectDir, clock: c}
}

func (r *Recorder) snapshotPath() string {
	return filepath.Join(r.projectDir, ".aidp", "checkpoint.yml")
}

func (r *Recorder) historyPath() string {
	return filepath.Join(r.projectDir, ".aidp", "checkpoint_history.jsonl")
}

// RecordCheckpoint computes status from metrics thresholds, writes
// the latest snapshot, and appends to the history.
func (r *Recorder) RecordCheckpoint(stepName string, iteration int, metrics Metrics) (Snapshot, error) {
	snap := Snapshot{
		StepName:  stepName,
		Iteration: iteration,
		Timestamp: r.clock.Now().UTC().Format("2006-01-02T15:04:05Z07:00"),
		Metrics:   metrics,
		Status:    metrics.deriveStatus(),
	}

	dir := filepath.Join(r.projectDir, ".aidp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Snapshot{}, &aidperr.PersistenceFailure{Path: dir, Err: err}
	}

	yamlData, err := yaml.Marshal(snap)
	if err != nil {
		return Snapshot{}, &aidperr.PersistenceFailure{Path: r.snapshotPath(), Err: err}
	}
	if err := os.WriteFile(r.snapshotPath(), yamlData, 0o644); err != nil {
		return Snapshot{}, &aidperr.PersistenceFailure{Path: r.snapshotPath(), Err: err}
	}

	jsonData, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, &aidperr.PersistenceFailure{Path: r.historyPath(), Err: err}
	}
	f, err := os.OpenFile(r.historyPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return Snapshot{}, &aidperr.PersistenceFailure{Path: r.historyPath(), Err: err}
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s\n", jsonData); err != nil {
		return Snapshot{}, &aidperr.PersistenceFailure{Path: r.historyPath(), Err: err}
	}
	return snap, nil
}

// ProgressSummary returns the current snapshot, the previous one (if
// any), and trends computed between them.
func (r *Recorder) ProgressSummary() (Summary, error) {
	history, err := r.readHistory()
	if err != nil {
		return Summary{}, err
	}
	if len(history) == 0 {
		return Summary{}, nil
	}
	current := history[len(history)-1]
	summary := Summary{Current: current, QualityScore: current.Metrics.CodeQuality}
	if len(history) >= 2 {
		prev := history[len(history)-2]
		summary.Previous = &prev
		summary.Trends = map[string]Trend{
			"testCoverage":    trendFor(prev.Metrics.TestCoverage, current.Metrics.TestCoverage),
			"codeQuality":     trendFor(prev.Metrics.CodeQuality, current.Metrics.CodeQuality),
			"prdTaskProgress": trendFor(prev.Metrics.PRDTaskProgress, current.Metrics.PRDTaskProgress),
		}
	}
	return summary, nil
}

func trendFor(prev, cur float64) Trend {
	change := cur - prev
	var direction string
	switch {
	case change > 0:
		direction = "up"
	case change < 0:
		direction = "down"
	default:
		direction = "stable"
	}
	var pct float64
	if prev != 0 {
		pct = (change / prev) * 100
	}
	return Trend{Direction: direction, Change: change, ChangePercent: pct}
}

func (r *Recorder) readHistory() ([]Snapshot, error) {
	data, err := os.ReadFile(r.historyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &aidperr.PersistenceFailure{Path: r.historyPath(), Err: err}
	}
	var out []Snapshot
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
