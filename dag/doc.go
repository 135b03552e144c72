// Package dag models the pipeline as a static directed acyclic graph of
// stages and provides a deterministic topological ordering over it.
//
// A Stage declares what it depends on, what data categories it consumes
// and produces, and an explicit logic version that feeds the cache key.
// The graph can be built in code or loaded from a YAML pipeline file.
package dag
