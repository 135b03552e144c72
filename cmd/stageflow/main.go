// Command stageflow runs the data pipeline: ingestion of CSV drops,
// normalization, validation and merge, with content-addressed stage
// caching and resumable run state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/stageflow/stageflow/config"
	"github.com/stageflow/stageflow/dag"
	"github.com/stageflow/stageflow/engine"
	"github.com/stageflow/stageflow/ingest"
	"github.com/stageflow/stageflow/logger"
	"github.com/stageflow/stageflow/observability"
	"github.com/stageflow/stageflow/registry"
	"github.com/stageflow/stageflow/runstate"
)

func main() {
	var (
		configFile    = flag.String("config", "", "path to a YAML config file")
		envFile       = flag.String("env-file", "", "path to a .env file")
		inboxDir      = flag.String("inbox", "", "directory watched for CSV drops (default <base_dir>/inbox)")
		resume        = flag.Bool("resume", false, "skip stages already marked passed in the run-state file")
		startStage    = flag.String("start-stage", "", "start the pipeline from this stage, skipping earlier ones")
		skipIngestion = flag.Bool("skip-ingestion", false, "start from normalization, leaving raw data untouched")
		tolerant      = flag.Bool("tolerant", false, "keep running independent stages after a failure")
		clean         = flag.Bool("clean", false, "remove generated files before running")
		raw           = flag.Bool("raw", false, "also delete raw downloads (use with -clean)")
		dryRun        = flag.Bool("dry-run", false, "preview which files cleanup would delete, then exit")
	)
	flag.Parse()

	cfg, err := config.Load(config.LoaderOptions{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(2)
	}
	logger.Init(cfg.Logging, cfg.Name)
	log := logger.GetGlobalLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Observability.Enabled {
		tracerCfg := observability.DefaultTracerConfig(cfg.Name)
		tracerCfg.Environment = cfg.Environment
		tracerCfg.Endpoint = cfg.Observability.Endpoint
		tracerCfg.SampleRate = cfg.Observability.SampleRate
		tp, err := observability.InitTracer(ctx, tracerCfg)
		if err != nil {
			log.Warn("tracing disabled", map[string]interface{}{"error": err.Error()})
		} else {
			defer tp.Shutdown(context.Background())
		}

		meterCfg := observability.DefaultMeterConfig(cfg.Name)
		meterCfg.Environment = cfg.Environment
		meterCfg.Endpoint = cfg.Observability.Endpoint
		mp, err := observability.InitMeter(ctx, &meterCfg)
		if err != nil {
			log.Warn("metrics disabled", map[string]interface{}{"error": err.Error()})
		} else {
			defer mp.Shutdown(context.Background())
			if metrics, err = observability.NewMetrics(observability.Meter(cfg.Name)); err != nil {
				log.Warn("metrics disabled", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	if *clean || *dryRun {
		artifacts, rawDirs := cleanupTargets(cfg)
		engine.Cleanup(artifacts, rawDirs, engine.CleanupOptions{
			DryRun:     *dryRun,
			IncludeRaw: *raw || *dryRun,
		}, log)
		if *dryRun {
			log.Info("dry run complete, pipeline execution skipped")
			return
		}
	}

	if err := run(ctx, cfg, log, runOptions{
		inbox:         *inboxDir,
		resume:        *resume,
		startStage:    *startStage,
		skipIngestion: *skipIngestion,
		tolerant:      *tolerant,
		metrics:       metrics,
	}); err != nil {
		log.Error("pipeline failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

type runOptions struct {
	inbox         string
	resume        bool
	startStage    string
	skipIngestion bool
	tolerant      bool
	metrics       *observability.Metrics
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, opts runOptions) error {
	inbox := opts.inbox
	if inbox == "" {
		inbox = filepath.Join(cfg.Data.BaseDir, "inbox")
	}
	for _, dir := range []string{inbox, cfg.Data.RawDir, cfg.Data.NormalizedDir, cfg.Data.ValidatedDir, cfg.Data.MergedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data directory %s: %w", dir, err)
		}
	}

	reg, err := registry.Open(cfg.Registry.Path, log)
	if err != nil {
		return err
	}
	defer reg.Close()

	state, err := runstate.Load(cfg.State.Path)
	if err != nil {
		return err
	}

	graph, err := pipelineGraph(cfg)
	if err != nil {
		return err
	}

	orc := engine.New(cfg, graph, reg, state, log)
	// The inbox is consume-only: ingestion's cache key must track its
	// contents so a fresh CSV drop re-runs ingestion instead of
	// cache-hitting on the previous batch.
	orc.RegisterCategory(engine.Category{Name: "inbox", Type: registry.TypeRaw, Paths: []string{inbox}})
	orc.RegisterCategory(engine.Category{Name: "raw_data", Type: registry.TypeRaw, Paths: []string{cfg.Data.RawDir}})
	orc.RegisterCategory(engine.Category{Name: "normalized_data", Type: registry.TypeNormalized, Paths: []string{cfg.Data.NormalizedDir}})
	orc.RegisterCategory(engine.Category{Name: "validated_data", Type: registry.TypeValidated, Paths: []string{cfg.Data.ValidatedDir}})
	orc.RegisterCategory(engine.Category{Name: "merged_data", Type: registry.TypeMerged, Paths: []string{cfg.Data.MergedDir}})

	registerRunners(orc, graph, cfg, log, inbox, opts.metrics)

	orc.RequireBefore("merge", cfg.Data.ValidatedDir)

	startStage := opts.startStage
	if startStage == "" && (opts.skipIngestion || !cfg.Pipeline.IngestionEnabled) {
		if _, ok := graph.Stage("normalization"); ok {
			startStage = "normalization"
		}
	}

	result, err := orc.Run(ctx, engine.Options{
		Resume:     opts.resume,
		StartStage: startStage,
		Tolerant:   opts.tolerant,
	})
	if result != nil {
		log.Info("run summary", map[string]interface{}{
			logger.FieldRunID: result.RunID,
			"stages":          engine.Describe(result),
			"duration":        result.Duration.String(),
		})
	}
	return err
}

// pipelineGraph loads the YAML definition when configured, otherwise the
// built-in default: ingestion, normalization, validation, merge. The
// pipeline toggles trim disabled stages from the default graph.
func pipelineGraph(cfg *config.Config) (*dag.Graph, error) {
	if cfg.Pipeline.DefinitionFile != "" {
		return dag.LoadGraph(cfg.Pipeline.DefinitionFile)
	}

	g := dag.NewGraph()
	if err := g.AddStage(dag.Stage{
		Name:         "ingestion",
		Consumes:     []string{"inbox"},
		Produces:     []string{"raw_data"},
		LogicVersion: "v1",
	}); err != nil {
		return nil, err
	}
	if !cfg.Pipeline.ProcessingEnabled {
		return g, nil
	}

	if err := g.AddStage(dag.Stage{
		Name:         "normalization",
		DependsOn:    []string{"ingestion"},
		Consumes:     []string{"raw_data"},
		Produces:     []string{"normalized_data"},
		LogicVersion: "v1",
	}); err != nil {
		return nil, err
	}

	mergeInput := "normalized_data"
	mergeDeps := []string{"normalization"}
	if cfg.Pipeline.ValidationEnabled {
		if err := g.AddStage(dag.Stage{
			Name:         "validation",
			DependsOn:    []string{"normalization"},
			Consumes:     []string{"normalized_data"},
			Produces:     []string{"validated_data"},
			LogicVersion: "v1",
		}); err != nil {
			return nil, err
		}
		mergeInput = "validated_data"
		mergeDeps = []string{"validation"}
	}

	if err := g.AddStage(dag.Stage{
		Name:         "merge",
		DependsOn:    mergeDeps,
		Consumes:     []string{mergeInput},
		Produces:     []string{"merged_data"},
		LogicVersion: "v1",
	}); err != nil {
		return nil, err
	}
	return g, g.Validate()
}

func registerRunners(orc *engine.Orchestrator, graph *dag.Graph, cfg *config.Config, log *logger.Logger, inbox string, metrics *observability.Metrics) {
	bind := func(name string, r engine.StageRunner) {
		r = engine.WithLogging(r, name, log)
		if cfg.Observability.Enabled {
			if metrics != nil {
				r = engine.WithMetrics(r, name, metrics)
			}
			r = engine.WithTracing(r, cfg.Name, name)
		}
		orc.RegisterRunner(name, r)
	}
	if _, ok := graph.Stage("ingestion"); ok {
		runner := ingest.NewRunner(log, ingest.NewDirSource("inbox", inbox, cfg.Data.RawDir))
		bind("ingestion", ingest.Stage(runner, "raw_data"))
	}
	if _, ok := graph.Stage("normalization"); ok {
		bind("normalization", normalizeStage(cfg))
	}
	if _, ok := graph.Stage("validation"); ok {
		bind("validation", validateStage(cfg))
	}
	if _, ok := graph.Stage("merge"); ok {
		bind("merge", mergeStage(cfg))
	}
}
