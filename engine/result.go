package engine

import "time"

// Stage outcome kinds for a single run.
const (
	OutcomeExecuted   = "executed"
	OutcomeCacheHit   = "cache_hit"
	OutcomeResumeSkip = "resume_skip"
	OutcomeSkipped    = "skipped"
	OutcomeFailed     = "failed"
)

// StageOutcome records what happened to one stage during a run.
type StageOutcome struct {
	Stage    string
	Outcome  string
	Duration time.Duration
	// Registered lists the (id, version) pairs committed for the stage.
	Registered []RegisteredArtifact
	Err        error
}

// RegisteredArtifact identifies one committed artifact version.
type RegisteredArtifact struct {
	ID      string
	Version string
	Path    string
}

// RunResult summarizes a full orchestrator run.
type RunResult struct {
	RunID    string
	Order    []string
	Stages   map[string]StageOutcome
	Duration time.Duration
}

// Failed reports whether any stage in the run failed.
func (r *RunResult) Failed() bool {
	for _, s := range r.Stages {
		if s.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}
