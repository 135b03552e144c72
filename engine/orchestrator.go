package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stageflow/stageflow/config"
	"github.com/stageflow/stageflow/dag"
	"github.com/stageflow/stageflow/errors"
	"github.com/stageflow/stageflow/hasher"
	"github.com/stageflow/stageflow/logger"
	"github.com/stageflow/stageflow/registry"
	"github.com/stageflow/stageflow/runstate"
)

// Category binds a symbolic data-category name to its concrete on-disk
// locations and its artifact type classification. Stages consume and
// produce categories, never raw paths; the orchestrator resolves them
// here when hashing inputs and registering outputs.
type Category struct {
	Name string
	// Type classifies artifacts produced under this category:
	// raw, normalized, validated or merged.
	Type string
	// Paths are the files or directories backing the category.
	Paths []string
}

// Options control a single orchestrator run.
type Options struct {
	// Resume enables the state-only skip path: stages already marked
	// passed in persisted run state are skipped without recomputing
	// cache keys.
	Resume bool
	// StartStage truncates the execution order to begin at the named
	// stage, bypassing earlier stages entirely. Distinct from Resume,
	// which consults run state.
	StartStage string
	// Tolerant keeps the run scanning after a stage failure, executing
	// later stages only when their dependencies still show passed.
	Tolerant bool
}

// Orchestrator composes the hash engine, registry and run-state store
// into the cache-aware execution loop.
type Orchestrator struct {
	cfg        *config.Config
	graph      *dag.Graph
	reg        *registry.Registry
	state      *runstate.Store
	log        *logger.Logger
	runners    map[string]StageRunner
	categories map[string]Category
	gates      map[string][]string

	now      func() time.Time
	newRunID func(time.Time) string
}

// New creates an Orchestrator over the given collaborators.
func New(cfg *config.Config, graph *dag.Graph, reg *registry.Registry, state *runstate.Store, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		graph:      graph,
		reg:        reg,
		state:      state,
		log:        log.WithComponent("orchestrator"),
		runners:    make(map[string]StageRunner),
		categories: make(map[string]Category),
		gates:      make(map[string][]string),
		now:        func() time.Time { return time.Now().UTC() },
		newRunID:   defaultRunID,
	}
}

func defaultRunID(t time.Time) string {
	return fmt.Sprintf("run-%s-%s", t.Format("20060102T150405Z"), uuid.NewString()[:8])
}

// RegisterRunner binds a stage name to its executable body.
func (o *Orchestrator) RegisterRunner(stage string, r StageRunner) {
	o.runners[stage] = r
}

// RegisterCategory declares a data category's locations and type.
func (o *Orchestrator) RegisterCategory(c Category) {
	o.categories[c.Name] = c
}

// RequireBefore installs a gate: the listed paths must exist before the
// named stage is allowed to execute.
func (o *Orchestrator) RequireBefore(stage string, paths ...string) {
	o.gates[stage] = append(o.gates[stage], paths...)
}

// Run executes the pipeline once. Stages run strictly sequentially in
// topological order; each stage's outputs are fully committed and
// registered before the next stage's cache key is computed.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*RunResult, error) {
	start := o.now()
	runID := o.newRunID(start)
	log := o.log.WithFields(map[string]interface{}{logger.FieldRunID: runID})

	order, err := dag.TopoSort(o.graph)
	if err != nil {
		log.Error("cannot order pipeline graph", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	if opts.StartStage != "" {
		order, err = truncateOrder(order, opts.StartStage)
		if err != nil {
			return nil, err
		}
		log.Info("starting from explicit stage", map[string]interface{}{
			logger.FieldStage: opts.StartStage,
		})
	}

	for _, name := range order {
		if _, ok := o.runners[name]; !ok {
			return nil, errors.Newf(errors.CodeInvalidInput, "no runner registered for stage %q", name)
		}
	}

	result := &RunResult{
		RunID:  runID,
		Order:  order,
		Stages: make(map[string]StageOutcome),
	}
	log.Info("run started", map[string]interface{}{"stages": len(order)})

	var runErr error
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		stage, _ := o.graph.Stage(name)

		outcome, err := o.runStage(ctx, log, stage, runID, opts)
		result.Stages[name] = outcome
		if err != nil {
			runErr = err
			if !opts.Tolerant {
				log.Error("aborting run", map[string]interface{}{
					logger.FieldStage: name,
					"error":           err.Error(),
				})
				break
			}
			log.Warn("continuing after failure (tolerant mode)", map[string]interface{}{
				logger.FieldStage: name,
			})
		}
	}

	result.Duration = o.now().Sub(start)
	log.Info("run finished", map[string]interface{}{
		"duration": result.Duration.String(),
		"failed":   result.Failed(),
	})
	return result, runErr
}

func truncateOrder(order []string, startStage string) ([]string, error) {
	for i, name := range order {
		if name == startStage {
			return order[i:], nil
		}
	}
	return nil, errors.Newf(errors.CodeUnknownStage, "start stage %q is not in the pipeline", startStage)
}

// runStage applies the skip policy and, when nothing skips it, executes
// the stage and commits its outputs. The skip policy is unified: the
// cache-hit check runs first and re-validates that the cached artifact's
// file still exists; the weaker state-only resume skip applies only in
// resume mode, and only when no registered artifact matched.
func (o *Orchestrator) runStage(ctx context.Context, log *logger.Logger, stage dag.Stage, runID string, opts Options) (StageOutcome, error) {
	begin := o.now()
	slog := log.WithFields(map[string]interface{}{logger.FieldStage: stage.Name})

	if opts.Tolerant {
		for _, dep := range stage.DependsOn {
			if !o.state.IsDone(dep) {
				slog.Warn("skipping stage, dependency not passed", map[string]interface{}{
					"dependency": dep,
				})
				if err := o.state.MarkSkipped(stage.Name); err != nil {
					return o.failed(stage, begin, err), err
				}
				return StageOutcome{Stage: stage.Name, Outcome: OutcomeSkipped, Duration: o.now().Sub(begin)}, nil
			}
		}
	}

	cacheKey, consumed, err := o.cacheKey(stage)
	if err != nil {
		// A missing hash input is always fatal: it must not silently
		// become a cache miss or, worse, a false hit.
		markErr := o.state.MarkFailed(stage.Name, err)
		if markErr != nil {
			slog.Error("cannot persist failure", map[string]interface{}{"error": markErr.Error()})
		}
		return o.failed(stage, begin, err), err
	}

	if cached, err := o.reg.GetByInputHash(cacheKey); err != nil {
		return o.failed(stage, begin, err), err
	} else if cached != nil {
		if fileExists(cached.Path) {
			slog.Info("cache hit, skipping stage", map[string]interface{}{
				logger.FieldArtifact: cached.ID,
				logger.FieldVersion:  cached.Version,
			})
			if err := o.state.MarkPassed(stage.Name, runstate.PassDetail{}); err != nil {
				return o.failed(stage, begin, err), err
			}
			return StageOutcome{Stage: stage.Name, Outcome: OutcomeCacheHit, Duration: o.now().Sub(begin)}, nil
		}
		// Cache entries are advisory: the registry row survives, but
		// the backing file is gone, so the stage must re-execute.
		slog.Warn("cached artifact file missing, re-executing", map[string]interface{}{
			logger.FieldArtifact: cached.ID,
			"path":               cached.Path,
		})
	}

	if opts.Resume && o.state.IsDone(stage.Name) {
		slog.Info("resume: stage already passed, skipping")
		return StageOutcome{Stage: stage.Name, Outcome: OutcomeResumeSkip, Duration: o.now().Sub(begin)}, nil
	}

	if paths, ok := o.gates[stage.Name]; ok {
		if err := RequireFiles(stage.Name, paths); err != nil {
			slog.Error("gate failed", map[string]interface{}{"error": err.Error()})
			if markErr := o.state.MarkGateFailed(stage.Name, err); markErr != nil {
				slog.Error("cannot persist gate failure", map[string]interface{}{"error": markErr.Error()})
			}
			return o.failed(stage, begin, err), err
		}
	}

	if err := o.state.MarkRunning(stage.Name); err != nil {
		return o.failed(stage, begin, err), err
	}
	slog.Info("executing stage")

	res, err := o.runners[stage.Name].Execute(ctx)
	if err != nil {
		wrapped := errors.Newf(errors.CodeStageFailed, "stage %q failed", stage.Name).WithCause(err)
		if markErr := o.state.MarkFailed(stage.Name, wrapped); markErr != nil {
			slog.Error("cannot persist failure", map[string]interface{}{"error": markErr.Error()})
		}
		slog.Error("stage failed", map[string]interface{}{"error": err.Error()})
		return o.failed(stage, begin, wrapped), wrapped
	}
	if res == nil {
		res = &StageResult{}
	}

	registered, err := o.commitOutputs(slog, stage, res, cacheKey, consumed, runID)
	if err != nil {
		if markErr := o.state.MarkFailed(stage.Name, err); markErr != nil {
			slog.Error("cannot persist failure", map[string]interface{}{"error": markErr.Error()})
		}
		return o.failed(stage, begin, err), err
	}

	gatePassed := true
	if err := o.state.MarkPassed(stage.Name, runstate.PassDetail{
		Rows:       res.Rows,
		Sources:    res.Sources,
		GatePassed: &gatePassed,
	}); err != nil {
		return o.failed(stage, begin, err), err
	}

	slog.Info("stage passed", map[string]interface{}{
		"artifacts": len(registered),
		"duration":  o.now().Sub(begin).String(),
	})
	return StageOutcome{
		Stage:      stage.Name,
		Outcome:    OutcomeExecuted,
		Duration:   o.now().Sub(begin),
		Registered: registered,
	}, nil
}

func (o *Orchestrator) failed(stage dag.Stage, begin time.Time, err error) StageOutcome {
	return StageOutcome{
		Stage:    stage.Name,
		Outcome:  OutcomeFailed,
		Duration: o.now().Sub(begin),
		Err:      err,
	}
}

// cacheKey derives the stage's input hash: a digest over the stage name,
// its logic identifier, the content hashes of everything it consumes
// (in sorted order), and the configuration fingerprint. Two invocations
// with identical cache keys are defined to be equivalent.
func (o *Orchestrator) cacheKey(stage dag.Stage) (key string, consumed []string, err error) {
	cats := append([]string(nil), stage.Consumes...)
	sort.Strings(cats)
	for _, cat := range cats {
		c, ok := o.categories[cat]
		if !ok {
			continue
		}
		paths := append([]string(nil), c.Paths...)
		sort.Strings(paths)
		for _, p := range paths {
			h, err := hasher.HashPath(p)
			if err != nil {
				return "", nil, err
			}
			consumed = append(consumed, h)
		}
	}

	parts := make([]string, 0, 2+len(consumed)+8)
	parts = append(parts, stage.Name, hasher.HashLogic(stage.LogicVersion))
	parts = append(parts, consumed...)
	parts = append(parts, o.cfg.Fingerprint()...)
	return hasher.HashStrings(parts), consumed, nil
}

// commitOutputs finalizes every temporary path the stage returned and
// registers one artifact version per committed file. The rename is a
// single filesystem operation, so a concurrent reader never observes a
// partially written file under the final name.
func (o *Orchestrator) commitOutputs(slog *logger.Logger, stage dag.Stage, res *StageResult, cacheKey string, consumed []string, runID string) ([]RegisteredArtifact, error) {
	cats := make([]string, 0, len(res.Artifacts))
	for cat := range res.Artifacts {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	var registered []RegisteredArtifact
	for _, cat := range cats {
		artifactType := registry.TypeRaw
		if c, ok := o.categories[cat]; ok && c.Type != "" {
			artifactType = c.Type
		}

		for _, tempPath := range res.Artifacts[cat] {
			finalPath, err := FinalPath(tempPath)
			if err != nil {
				return registered, err
			}
			if err := os.Rename(tempPath, finalPath); err != nil {
				return registered, errors.Newf(errors.CodeInternal,
					"committing %s", finalPath).WithCause(err)
			}

			contentHash, err := hasher.HashFile(finalPath)
			if err != nil {
				return registered, err
			}

			id := artifactID(stage.Name, finalPath)
			version, err := o.reg.NextVersion(id)
			if err != nil {
				return registered, err
			}

			artifact := &registry.Artifact{
				ID:             id,
				Version:        version,
				ContentHash:    contentHash,
				Path:           finalPath,
				Type:           artifactType,
				Format:         Ext(finalPath),
				CreatedAt:      o.now(),
				CreatedByStage: stage.Name,
				CreatedByRun:   runID,
				Inputs:         append([]string{cacheKey}, consumed...),
				Metadata:       map[string]any{"category": cat},
			}
			if err := o.reg.Register(artifact); err != nil {
				return registered, err
			}

			slog.Info("artifact committed", map[string]interface{}{
				logger.FieldArtifact: id,
				logger.FieldVersion:  version,
				"path":               finalPath,
			})
			registered = append(registered, RegisteredArtifact{ID: id, Version: version, Path: finalPath})
		}
	}
	return registered, nil
}

// artifactID derives the logical artifact identity from the producing
// stage and the committed file's stem, e.g. "normalization:bp_normalized".
func artifactID(stageName, finalPath string) string {
	return stageName + ":" + Stem(finalPath)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Describe returns a short human-readable summary of a run for logs.
func Describe(r *RunResult) string {
	var b strings.Builder
	for _, name := range r.Order {
		s, ok := r.Stages[name]
		if !ok {
			fmt.Fprintf(&b, "%s=untouched ", name)
			continue
		}
		fmt.Fprintf(&b, "%s=%s ", name, s.Outcome)
	}
	return strings.TrimSpace(b.String())
}
