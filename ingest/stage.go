package ingest

import (
	"context"

	"github.com/stageflow/stageflow/engine"
)

// Stage adapts a Runner to the orchestrator's StageRunner contract.
// The batch's temporary paths are reported under the given category for
// the orchestrator to commit; counts feed run-state reporting.
func Stage(r *Runner, category string) engine.StageRunner {
	return engine.RunnerFunc(func(ctx context.Context) (*engine.StageResult, error) {
		paths, counts, err := r.RunDetailed(ctx)
		if err != nil {
			return nil, err
		}
		return &engine.StageResult{
			Artifacts: map[string][]string{category: paths},
			Metrics:   map[string]float64{"files_ingested": float64(len(paths))},
			Sources:   counts,
		}, nil
	})
}
