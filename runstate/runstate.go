// Package runstate persists per-stage execution status so an interrupted
// run can resume instead of restarting from scratch.
//
// The whole state is one JSON document keyed by stage name. Every mutation
// re-serializes the document and writes it with a write-temp-then-rename
// pattern, so the file on disk is always either the previous valid
// document or the new one, never a half-written fragment.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Stage status values.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// StageState is the persisted record of one stage attempt.
type StageState struct {
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Rows       *int64         `json:"rows,omitempty"`
	Sources    map[string]int `json:"sources,omitempty"`
	GatePassed *bool          `json:"gate_passed,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type document struct {
	Stages map[string]StageState `json:"stages"`
}

// Store is the durable run-state controller.
type Store struct {
	path string
	doc  document
	now  func() time.Time
}

// Load reads the state document at path, or starts a fresh one if the
// file does not exist yet.
func Load(path string) (*Store, error) {
	s := &Store{
		path: path,
		doc:  document{Stages: make(map[string]StageState)},
		now:  func() time.Time { return time.Now().UTC() },
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("runstate: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("runstate: parsing %s: %w", path, err)
	}
	if s.doc.Stages == nil {
		s.doc.Stages = make(map[string]StageState)
	}
	return s, nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string { return s.path }

// Status returns a stage's status, defaulting to pending for stages that
// have never been attempted.
func (s *Store) Status(stage string) string {
	if st, ok := s.doc.Stages[stage]; ok {
		return st.Status
	}
	return StatusPending
}

// IsDone reports whether the stage has passed.
func (s *Store) IsDone(stage string) bool { return s.Status(stage) == StatusPassed }

// IsFailed reports whether the stage has failed.
func (s *Store) IsFailed(stage string) bool { return s.Status(stage) == StatusFailed }

// CanRun reports whether the stage may be (re-)attempted: pending stages
// and failed stages are runnable, passed and running ones are not.
func (s *Store) CanRun(stage string) bool {
	status := s.Status(stage)
	return status == StatusPending || status == StatusFailed
}

// Get returns the full persisted record for a stage.
func (s *Store) Get(stage string) (StageState, bool) {
	st, ok := s.doc.Stages[stage]
	return st, ok
}

// MarkRunning records that a stage attempt has started.
func (s *Store) MarkRunning(stage string) error {
	s.doc.Stages[stage] = StageState{
		Status:    StatusRunning,
		Timestamp: s.now(),
	}
	return s.save()
}

// PassDetail carries the optional metrics recorded with a passed stage.
type PassDetail struct {
	Rows       *int64
	Sources    map[string]int
	GatePassed *bool
}

// MarkPassed records a successful stage attempt with optional metrics.
func (s *Store) MarkPassed(stage string, detail PassDetail) error {
	s.doc.Stages[stage] = StageState{
		Status:     StatusPassed,
		Timestamp:  s.now(),
		Rows:       detail.Rows,
		Sources:    detail.Sources,
		GatePassed: detail.GatePassed,
	}
	return s.save()
}

// MarkFailed records a failed stage attempt with the error text for
// operator diagnosis.
func (s *Store) MarkFailed(stage string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	s.doc.Stages[stage] = StageState{
		Status:    StatusFailed,
		Timestamp: s.now(),
		Error:     msg,
	}
	return s.save()
}

// MarkGateFailed records a failed pre-stage gate: the stage never ran,
// an upstream output it needed was missing.
func (s *Store) MarkGateFailed(stage string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	gatePassed := false
	s.doc.Stages[stage] = StageState{
		Status:     StatusFailed,
		Timestamp:  s.now(),
		GatePassed: &gatePassed,
		Error:      msg,
	}
	return s.save()
}

// MarkSkipped records that a stage was excluded from this run.
func (s *Store) MarkSkipped(stage string) error {
	s.doc.Stages[stage] = StageState{
		Status:    StatusSkipped,
		Timestamp: s.now(),
	}
	return s.save()
}

// save writes the document to a sibling temp path and atomically renames
// it over the target.
func (s *Store) save() error {
	data, err := json.MarshalIndent(&s.doc, "", "    ")
	if err != nil {
		return fmt.Errorf("runstate: encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("runstate: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("runstate: creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("runstate: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("runstate: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("runstate: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("runstate: replacing %s: %w", s.path, err)
	}
	return nil
}
