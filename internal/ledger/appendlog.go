// Package ledger implements the append-only record store and the task
// ledger built on top of it.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
	"github.com/re-cinq/aidp-loop/internal/applog"
)

// AppendOnlyLog is a line-delimited JSON record store. Append is
// mutex-serialized and uses O_APPEND so concurrent writers never
// interleave partial records; Scan and Tail skip malformed lines with
// a logged warning rather than failing outright.
type AppendOnlyLog struct {
	path string
	mu   sync.Mutex
	log  applog.Logger
}

// NewAppendOnlyLog opens (creating if absent) the log file at path.
func NewAppendOnlyLog(path string, log applog.Logger) (*AppendOnlyLog, error) {
	if log == nil {
		log = applog.Discard{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &aidperr.PersistenceFailure{Path: path, Err: err}
	}
	return &AppendOnlyLog{path: path, log: log}, nil
}

// Append atomically appends one newline-terminated JSON record.
func (l *AppendOnlyLog) Append(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return &aidperr.PersistenceFailure{Path: l.path, Err: err}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &aidperr.PersistenceFailure{Path: l.path, Err: err}
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s\n", data); err != nil {
		return &aidperr.PersistenceFailure{Path: l.path, Err: err}
	}
	return nil
}

// Scan iterates records oldest-first, invoking fn with each raw line.
// Malformed lines are skipped with a warning instead of aborting the
// scan.
func (l *AppendOnlyLog) Scan(fn func(raw []byte) error) error {
	l.mu.Lock()
	f, err := os.Open(l.path)
	l.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &aidperr.PersistenceFailure{Path: l.path, Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		if err := fn(cp); err != nil {
			l.log.Warn("ledger: skipping malformed record", "path", l.path, "line", lineNo, "err", err)
		}
	}
	return scanner.Err()
}

// Tail returns the last n valid raw lines, oldest-first.
func (l *AppendOnlyLog) Tail(n int) ([][]byte, error) {
	var all [][]byte
	err := l.Scan(func(raw []byte) error {
		if !json.Valid(raw) {
			return fmt.Errorf("invalid JSON record")
		}
		all = append(all, raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}
