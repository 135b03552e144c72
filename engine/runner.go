package engine

import "context"

// StageRunner is the execution unit the orchestrator invokes. Concrete
// stage bodies (fetching, reshaping, validating, merging) live outside
// the engine; the orchestrator depends only on this interface.
//
// A runner performs all work against temporary output paths (see
// TempPath) and must never write to final paths; the orchestrator owns
// the atomic rename that makes outputs visible.
type StageRunner interface {
	Execute(ctx context.Context) (*StageResult, error)
}

// RunnerFunc adapts a plain function to the StageRunner interface.
type RunnerFunc func(ctx context.Context) (*StageResult, error)

// Execute calls the wrapped function.
func (f RunnerFunc) Execute(ctx context.Context) (*StageResult, error) { return f(ctx) }

// StageResult is what a stage callable returns on success.
type StageResult struct {
	// Artifacts maps produced data-category names to the temporary
	// file paths holding each output. A stage with no artifacts (pure
	// side-effecting work) returns an empty map; that is not an error.
	Artifacts map[string][]string
	// Metrics holds optional scalar measurements.
	Metrics map[string]float64
	// Rows is the optional total row count for run-state reporting.
	Rows *int64
	// Sources holds optional per-source row counts.
	Sources map[string]int
}
