package registry

import "time"

// Artifact type categories.
const (
	TypeRaw        = "raw"
	TypeNormalized = "normalized"
	TypeValidated  = "validated"
	TypeMerged     = "merged"
)

// Artifact is one immutable, versioned record of a stage's committed
// output file. Identity is the (ID, Version) pair; Version is a
// monotonically increasing per-ID sequence starting at "v1".
type Artifact struct {
	// ID is the logical identity, derived from (stage, logical name).
	ID string
	// Version is the human-facing version string, e.g. "v1", "v2".
	Version string

	// ContentHash is the digest of the committed file's bytes.
	ContentHash string
	// Path is the storage location of the committed file.
	Path string

	// Type categorizes the artifact: raw, normalized, validated, merged.
	Type string
	// Format is the file format, e.g. "csv", "parquet", "json".
	Format string

	// CreatedAt is the registration time.
	CreatedAt time.Time
	// CreatedByStage names the stage that produced this version.
	CreatedByStage string
	// CreatedByRun is the run identifier of the producing run.
	CreatedByRun string

	// Inputs is the lineage: the input-hash strings (cache keys and
	// upstream content hashes) that produced this version.
	Inputs []string

	// Schema optionally describes the artifact's columns.
	Schema map[string]any
	// Metadata holds free-form enrichment.
	Metadata map[string]any
}
