// Package engine runs a pipeline graph with content-addressed caching,
// atomic output commit and resumable run state.
//
// Stages are declared in a dag.Graph and bound to StageRunner bodies.
// Before a stage executes, the orchestrator derives a cache key from
// the stage name, its logic version, the hashes of everything it
// consumes and the configuration fingerprint; if a registered artifact
// already carries that key and its file still exists, the stage is
// skipped.
//
// Stage bodies write to temporary paths obtained from TempPath. The
// orchestrator commits them with an atomic rename after the body
// succeeds, so a crash mid-stage never leaves a partial file under a
// final name.
//
//	orc := engine.New(cfg, graph, reg, state, log)
//	orc.RegisterCategory(engine.Category{Name: "raw_data", Type: registry.TypeRaw, Paths: []string{cfg.Data.RawDir}})
//	orc.RegisterRunner("normalization", engine.RunnerFunc(normalize))
//	result, err := orc.Run(ctx, engine.Options{Resume: true})
package engine
