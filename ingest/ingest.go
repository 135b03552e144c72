// Package ingest coordinates external data sources and aggregates the
// temporary files they produce.
//
// The runner is strict: if any source fails mid-batch, every temporary
// file produced so far is deleted and the failure is re-raised as one
// aggregate error. This is an all-or-nothing commit at the ingestion
// boundary, distinct from the per-stage atomic-rename commit the
// orchestrator performs.
package ingest

import (
	"context"
	"os"

	"github.com/stageflow/stageflow/errors"
	"github.com/stageflow/stageflow/logger"
)

// DataSource is the contract every ingestion source implements. Sources
// fetch remote data, reshape it into the canonical schema, and write the
// result to temporary paths for the orchestrator to finalize.
type DataSource interface {
	// Name identifies the source in logs and errors.
	Name() string
	// Connect establishes the source's session or client.
	Connect(ctx context.Context) error
	// Fetch retrieves raw data from the source.
	Fetch(ctx context.Context) (any, error)
	// Normalize reshapes raw data into the canonical schema.
	Normalize(raw any) (any, error)
	// Store writes the normalized snapshot to temporary paths and
	// returns them. It must never write to final output paths.
	Store(normalized any) ([]string, error)
}

// Runner executes a list of sources and collects their temporary paths.
type Runner struct {
	sources []DataSource
	log     *logger.Logger
}

// NewRunner creates a Runner over the given sources.
func NewRunner(log *logger.Logger, sources ...DataSource) *Runner {
	return &Runner{sources: sources, log: log.WithComponent("ingest")}
}

// Run executes the ingestion lifecycle for all configured sources and
// returns the combined list of temporary paths they created. If any
// source fails, all temporary files from the batch are deleted and a
// single INGESTION_FAILED error naming the source is returned.
func (r *Runner) Run(ctx context.Context) ([]string, error) {
	paths, _, err := r.RunDetailed(ctx)
	return paths, err
}

// RunDetailed is Run plus a per-source file count, for run-state
// reporting.
func (r *Runner) RunDetailed(ctx context.Context) ([]string, map[string]int, error) {
	r.log.Info("ingestion batch started", map[string]interface{}{
		"sources": len(r.sources),
	})

	var tempPaths []string
	counts := make(map[string]int, len(r.sources))
	for _, source := range r.sources {
		paths, err := r.runSource(ctx, source)
		if err != nil {
			// The failing source may have staged some files before the
			// error surfaced; those belong to the batch too.
			tempPaths = append(tempPaths, paths...)
			r.rollback(tempPaths)
			return nil, nil, errors.Newf(errors.CodeIngestionFailed,
				"source %q failed, rolled back %d files", source.Name(), len(tempPaths)).
				WithCause(err).
				WithDetail("source", source.Name())
		}
		counts[source.Name()] = len(paths)
		if len(paths) > 0 {
			tempPaths = append(tempPaths, paths...)
			r.log.Info("source produced artifacts", map[string]interface{}{
				"source": source.Name(),
				"files":  len(paths),
			})
		}
	}

	r.log.Info("ingestion batch finished", map[string]interface{}{
		"files": len(tempPaths),
	})
	return tempPaths, counts, nil
}

func (r *Runner) runSource(ctx context.Context, source DataSource) ([]string, error) {
	if err := source.Connect(ctx); err != nil {
		return nil, err
	}
	raw, err := source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	normalized, err := source.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return source.Store(normalized)
}

// rollback deletes the batch's temporary files. Cleanup failures are
// logged and skipped; the aggregate ingestion error still propagates.
func (r *Runner) rollback(paths []string) {
	if len(paths) == 0 {
		return
	}
	r.log.Warn("rolling back ingestion batch", map[string]interface{}{
		"files": len(paths),
	})
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			r.log.Warn("failed to delete orphan file", map[string]interface{}{
				"path":  p,
				"error": err.Error(),
			})
		}
	}
}
