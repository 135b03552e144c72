package errors

// Code represents a machine-readable error code.
type Code string

// Graph errors (fatal before any stage runs)
const (
	// CodeCycle indicates the stage graph is not acyclic.
	CodeCycle Code = "CYCLE_DETECTED"
	// CodeUnknownStage indicates a dependency references an undeclared stage.
	CodeUnknownStage Code = "UNKNOWN_STAGE"
)

// Execution errors
const (
	// CodeGateFailed indicates expected upstream files are missing.
	CodeGateFailed Code = "GATE_FAILED"
	// CodeStageFailed indicates a stage runner returned an error.
	CodeStageFailed Code = "STAGE_FAILED"
	// CodeIngestionFailed indicates an ingestion batch was rolled back.
	CodeIngestionFailed Code = "INGESTION_FAILED"
)

// Hashing errors
const (
	// CodeHashIO indicates a file expected to exist for hashing does not.
	// Always fatal: a missing input must not produce a false cache hit.
	CodeHashIO Code = "HASH_IO"
)

// Registry errors
const (
	// CodeRegistryCorrupt indicates malformed stored artifact metadata.
	CodeRegistryCorrupt Code = "REGISTRY_CORRUPT"
	// CodeNotFound indicates a requested record does not exist.
	CodeNotFound Code = "NOT_FOUND"
)

// General errors
const (
	// CodeInvalidInput indicates invalid caller-supplied input.
	CodeInvalidInput Code = "INVALID_INPUT"
	// CodeInternal indicates an unclassified internal failure.
	CodeInternal Code = "INTERNAL_ERROR"
)
