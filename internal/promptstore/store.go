// Package promptstore manages the durable prompt document for the
// current step: a single Markdown file that the engine rewrites every
// iteration and periodically archives.
package promptstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
	"github.com/re-cinq/aidp-loop/internal/clock"
)

// Store owns <project>/.aidp/PROMPT.md and its archive directory.
type Store struct {
	projectDir string
	clock      clock.Clock
}

// New builds a Store rooted at projectDir (the directory that
// contains .aidp/).
func New(projectDir string, c clock.Clock) *Store {
	if c == nil {
		c = clock.Real{}
	}
	return &Store{projectDir: projectDir, clock: c}
}

// Path returns the active prompt document's path.
func (s *Store) Path() string {
	return filepath.Join(s.projectDir, ".aidp", "PROMPT.md")
}

func (s *Store) archiveDir() string {
	return filepath.Join(s.projectDir, ".aidp", "prompt_archive")
}

// Write replaces the prompt document's contents.
func (s *Store) Write(body string) error {
	path := s.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &aidperr.PersistenceFailure{Path: path, Err: err}
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return &aidperr.PersistenceFailure{Path: path, Err: err}
	}
	return nil
}

// Read returns the prompt document's current contents.
func (s *Store) Read() (string, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", &aidperr.PersistenceFailure{Path: s.Path(), Err: err}
	}
	return string(data), nil
}

// Exists reports whether the prompt document is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Delete removes the prompt document. It is not an error if absent.
func (s *Store) Delete() error {
	err := os.Remove(s.Path())
	if err != nil && !os.IsNotExist(err) {
		return &aidperr.PersistenceFailure{Path: s.Path(), Err: err}
	}
	return nil
}

// Archive copies the prompt document to
// prompt_archive/YYYYMMDD_HHMMSS_<stepName>_PROMPT.md without removing
// the original.
func (s *Store) Archive(stepName string) error {
	body, err := s.Read()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.archiveDir(), 0o755); err != nil {
		return &aidperr.PersistenceFailure{Path: s.archiveDir(), Err: err}
	}
	name := fmt.Sprintf("%s_%s_PROMPT.md", s.clock.Now().UTC().Format("20060102_150405"), stepName)
	path := filepath.Join(s.archiveDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return &aidperr.PersistenceFailure{Path: path, Err: err}
	}
	return nil
}

// Optimizer composes a token-budgeted prompt body. An implementation
// is injected by callers that want prompt optimization; nothing in
// this package requires one.
type Optimizer interface {
	Compose(ctx Context) (string, error)
}

// Context carries whatever inputs an Optimizer needs to compose a
// prompt body.
type Context struct {
	StepName string
	Extra    map[string]any
}

// WriteOptimized asks optimizer to compose a body and writes it. On
// optimizer failure it returns the error so the caller can fall back
// to calling Write with an unoptimized body itself -- this package
// never silently falls back on the caller's behalf.
func (s *Store) WriteOptimized(ctx Context, optimizer Optimizer) error {
	body, err := optimizer.Compose(ctx)
	if err != nil {
		return err
	}
	return s.Write(body)
}
